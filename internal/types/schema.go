// Copyright 2024 The EM-√ Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package types

// DataType names the declared type of a Field (§3, §6 YAML field-type
// tokens).
type DataType uint8

const (
	TypeBool DataType = iota
	TypeI32
	TypeI64
	TypeF32
	TypeF64
	TypeUtf8
	TypeBinary
)

func (d DataType) String() string {
	switch d {
	case TypeBool:
		return "Boolean"
	case TypeI32:
		return "Int32"
	case TypeI64:
		return "Int64"
	case TypeF32:
		return "Float32"
	case TypeF64:
		return "Float64"
	case TypeBinary:
		return "Binary"
	default:
		return "Utf8"
	}
}

// Kind maps a DataType to the Scalar Kind it holds.
func (d DataType) Kind() Kind {
	switch d {
	case TypeBool:
		return KindBool
	case TypeI32:
		return KindI32
	case TypeI64:
		return KindI64
	case TypeF32:
		return KindF32
	case TypeF64:
		return KindF64
	case TypeBinary:
		return KindBinary
	default:
		return KindUtf8
	}
}

// DataTypeFromToken maps a §6 YAML field-type token to a DataType; any
// unrecognized token is Utf8, mirroring the spec's "else Utf8" fallback.
func DataTypeFromToken(token string) DataType {
	switch token {
	case "Boolean", "bool":
		return TypeBool
	case "Int32", "i32":
		return TypeI32
	case "Int64", "i64":
		return TypeI64
	case "Float32", "f32":
		return TypeF32
	case "Float64", "f64":
		return TypeF64
	case "Binary", "bytes":
		return TypeBinary
	default:
		return TypeUtf8
	}
}

// Field is one column declaration within a Schema.
type Field struct {
	Name     string
	DataType DataType
	Nullable bool
}

// ColumnStats is the advisory per-column statistic set consumed by the
// cost model (§4.F). Stats are always optional; their absence must never
// change correctness, only plan quality.
type ColumnStats struct {
	Min           Scalar
	Max           Scalar
	NullCount     int64
	DistinctCount int64
	TotalCount    int64
}

// SchemaStats maps column name to ColumnStats.
type SchemaStats map[string]ColumnStats

// Schema is the ordered Field sequence plus optional SchemaStats (§3).
type Schema struct {
	Fields []Field
	Stats  SchemaStats
}

// FieldByName returns the named field and its index, or ok=false.
func (s Schema) FieldByName(name string) (Field, int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return f, i, true
		}
	}
	return Field{}, -1, false
}

// Project returns the sub-schema containing only the named columns, in
// the order requested, propagating any matching stats.
func (s Schema) Project(names []string) (Schema, error) {
	out := Schema{Fields: make([]Field, 0, len(names))}
	if s.Stats != nil {
		out.Stats = SchemaStats{}
	}
	for _, n := range names {
		f, _, ok := s.FieldByName(n)
		if !ok {
			return Schema{}, fieldNotFound(n)
		}
		out.Fields = append(out.Fields, f)
		if s.Stats != nil {
			if st, ok := s.Stats[n]; ok {
				out.Stats[n] = st
			}
		}
	}
	return out, nil
}

// ColumnNames returns the ordered field names.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}
