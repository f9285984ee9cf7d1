package flexbuf

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/flexbuf/pkg/flexbuffers"
)

type benchStruct struct {
	Val      []string  `yaml:"val" cbor:"val"`
	Mod      []int8    `yaml:"mod" cbor:"mod"`
	Integers []int16   `yaml:"integers" cbor:"integers"`
	Float3   []float32 `yaml:"float3" cbor:"float3"`
	Float6   []float64 `yaml:"float6" cbor:"float6"`
}

func benchValue() benchStruct {
	return benchStruct{Val: []string{"azerty", "hello", "world", "random"},
		Mod: []int8{12, 10, 13, 1}, Integers: []int16{100, 250, 300},
		Float3: []float32{12.13, 16.23, 75.1}, Float6: []float64{100.5, 165.63, 153.5}}
}

func BenchmarkFlexEncoding(b *testing.B) {
	z := benchValue()
	c := NewCodec(DefaultOptions())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = c.Marshal(z)
	}
}

func BenchmarkFlexDecoding(b *testing.B) {
	c := NewCodec(DefaultOptions())
	res, _ := c.Marshal(benchValue())
	y := &benchStruct{}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = c.Unmarshal(res, y)
	}
}

func BenchmarkFlexDecodingNoValidate(b *testing.B) {
	opts := DefaultOptions()
	opts.Validate = false
	c := NewCodec(opts)
	res, _ := c.Marshal(benchValue())
	y := &benchStruct{}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = c.Unmarshal(res, y)
	}
}

func BenchmarkFlexLazyLookup(b *testing.B) {
	res, _ := Marshal(benchValue())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		root, _ := flexbuffers.GetRoot(res)
		m, _ := root.AsMap()
		f, _ := m.Get("Float6")
		vec, _ := f.AsVector()
		e, _ := vec.At(2)
		_, _ = e.AsFloat64()
	}
}

func BenchmarkValidate(b *testing.B) {
	res, _ := Marshal(benchValue())
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = IsValid(res)
	}
}

func BenchmarkYamlEncoding(b *testing.B) {
	z := benchValue()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = yaml.Marshal(z)
	}
}

func BenchmarkYamlDecoding(b *testing.B) {
	res, _ := yaml.Marshal(benchValue())
	y := &benchStruct{}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = yaml.Unmarshal(res, y)
	}
}

func BenchmarkCborEncoding(b *testing.B) {
	z := benchValue()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = cbor.Marshal(z)
	}
}

func BenchmarkCborDecoding(b *testing.B) {
	res, _ := cbor.Marshal(benchValue())
	y := &benchStruct{}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = cbor.Unmarshal(res, y)
	}
}
