package config

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM removes everything that reaches outside the VM: os, io,
// module loading, debug and metatable access. string, table, math and the
// basic functions stay.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{
		"os", "io", "debug",
		"require", "dofile", "loadfile", "load", "loadstring", "module",
		"getmetatable", "setmetatable", "rawget", "rawset", "rawequal",
		"getfenv", "setfenv", "collectgarbage", "newproxy",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a size-limited Lua VM with sandboxing applied.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize:       maxCallStack,
		RegistrySize:        maxRegistrySize,
		IncludeGoStackTrace: false,
	})
	sandboxLuaVM(L)
	return L
}
