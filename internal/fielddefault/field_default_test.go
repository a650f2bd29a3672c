package fielddefault

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		kind     protoreflect.Kind
		literal  string
		expected any
	}{
		{protoreflect.BoolKind, "true", true},
		{protoreflect.BoolKind, "false", false},
		{protoreflect.Int32Kind, "-42", int32(-42)},
		{protoreflect.Sint32Kind, "16", int32(16)},
		{protoreflect.Sfixed64Kind, "-9000000000", int64(-9000000000)},
		{protoreflect.Uint32Kind, "4294967295", uint32(math.MaxUint32)},
		{protoreflect.Fixed64Kind, "18446744073709551615", uint64(math.MaxUint64)},
		{protoreflect.FloatKind, "1.5", float32(1.5)},
		{protoreflect.DoubleKind, "-inf", math.Inf(-1)},
		{protoreflect.DoubleKind, "inf", math.Inf(1)},
		{protoreflect.StringKind, `a\nb`, `a\nb`},
		{protoreflect.BytesKind, `a\nb\001\x7f`, []byte("a\nb\x01\x7f")},
	}
	for _, tc := range testCases {
		t.Run(tc.kind.String()+"/"+tc.literal, func(t *testing.T) {
			v, err := Parse(tc.kind, tc.literal)
			require.NoError(t, err)
			require.Equal(t, tc.expected, v)
		})
	}

	v, err := Parse(protoreflect.FloatKind, "nan")
	require.NoError(t, err)
	require.True(t, math.IsNaN(float64(v.(float32))))
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		kind    protoreflect.Kind
		literal string
		errMsg  string
	}{
		{protoreflect.BoolKind, "yes", `invalid bool literal "yes"`},
		{protoreflect.Int32Kind, "3000000000", `invalid int32 literal "3000000000"`},
		{protoreflect.Uint64Kind, "-1", `invalid uint64 literal "-1"`},
		{protoreflect.DoubleKind, "abc", `invalid double literal "abc"`},
		{protoreflect.BytesKind, `\q`, `invalid bytes literal "\\q"`},
		{protoreflect.EnumKind, "FOO", "cannot parse default value for field of kind enum"},
		{protoreflect.MessageKind, "", "cannot parse default value for field of kind message"},
	}
	for _, tc := range testCases {
		_, err := Parse(tc.kind, tc.literal)
		require.EqualError(t, err, tc.errMsg)
	}
}

// Go-only integer syntax must be rejected, since the protobuf runtime refuses
// to convert files that use it.
func TestParse_GoIntegerSyntax(t *testing.T) {
	for _, literal := range []string{"0b11", "0o17", "1_000", "0x10"} {
		for _, kind := range []protoreflect.Kind{protoreflect.Int32Kind, protoreflect.Uint64Kind} {
			_, err := Parse(kind, literal)
			require.Error(t, err, "%v %s", kind, literal)
		}
	}
}

func TestParse_AllScalarKinds(t *testing.T) {
	for num := range descriptorpb.FieldDescriptorProto_Type_name {
		kind := protoreflect.Kind(num)
		switch kind {
		case protoreflect.EnumKind, protoreflect.MessageKind, protoreflect.GroupKind:
			continue
		}
		literal := "1"
		if kind == protoreflect.BoolKind {
			literal = "true"
		}
		_, err := Parse(kind, literal)
		require.NoError(t, err, kind.String())
	}
}
