package gopherlua

import (
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestBridgeToGoValue(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	tests := []struct {
		name  string
		input lua.LValue
		want  any
	}{
		{"nil", lua.LNil, nil},
		{"true", lua.LTrue, true},
		{"false", lua.LFalse, false},
		{"integer", lua.LNumber(42), int64(42)},
		{"float", lua.LNumber(3.5), 3.5},
		{"string", lua.LString("hello"), "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bridge.ToGoValue(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToGoValue(%v) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestBridgeTables(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	t.Run("array", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetInt(1, lua.LString("a"))
		tbl.RawSetInt(2, lua.LString("b"))

		got := bridge.ToGoValue(tbl)
		want := []any{"a", "b"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ToGoValue(array) = %v, want %v", got, want)
		}
	})

	t.Run("map", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetString("name", lua.LString("think"))
		tbl.RawSetString("interval", lua.LNumber(1000))

		got := bridge.ToGoValue(tbl)
		want := map[string]any{"name": "think", "interval": int64(1000)}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ToGoValue(map) = %v, want %v", got, want)
		}
	})

	t.Run("circular", func(t *testing.T) {
		tbl := L.NewTable()
		tbl.RawSetString("self", tbl)

		got, ok := bridge.ToGoValue(tbl).(map[string]any)
		if !ok {
			t.Fatalf("ToGoValue(circular) = %T, want map", got)
		}
		if got["self"] != nil {
			t.Errorf("circular reference = %v, want nil", got["self"])
		}
	})
}

func TestBridgeRoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	in := map[string]any{
		"words":  []any{"!a", "!b"},
		"count":  int64(2),
		"active": true,
	}

	got := bridge.ToGoValue(bridge.ToLuaValue(in))
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %v, want %v", got, in)
	}
}

func TestBridgeToLuaValueFallback(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	bridge := NewBridge(L)

	type point struct{ X, Y int }
	got := bridge.ToLuaValue(point{1, 2})
	if got.Type() != lua.LTString {
		t.Errorf("ToLuaValue(struct) type = %v, want string", got.Type())
	}
}
