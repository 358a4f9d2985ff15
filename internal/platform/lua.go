package platform

import (
	lua "github.com/yuin/gopher-lua"
)

// InjectPlatformTable exposes info to Lua as the read-only global
// "platform". It must run before any user configuration code.
func InjectPlatformTable(L *lua.LState, info *Info) error {
	t := L.NewTable()

	L.SetField(t, "os", lua.LString(info.OS))
	L.SetField(t, "arch", lua.LString(info.Arch))
	L.SetField(t, "arch_raw", lua.LString(info.ArchRaw))
	L.SetField(t, "triple", lua.LString(info.Triple()))
	if host, err := info.MatrixHost(); err == nil {
		L.SetField(t, "host", lua.LString(host))
	}

	L.SetField(t, "is_linux", lua.LBool(info.IsLinux()))
	L.SetField(t, "is_macos", lua.LBool(info.IsMacOS()))
	L.SetField(t, "is_windows", lua.LBool(info.IsWindows()))
	L.SetField(t, "is_amd64", lua.LBool(info.IsAMD64()))
	L.SetField(t, "is_arm64", lua.LBool(info.IsARM64()))
	L.SetField(t, "is_ci", lua.LBool(info.CI))
	if info.Runner != "" {
		L.SetField(t, "runner", lua.LString(info.Runner))
	}

	if info.IsLinux() && info.Platform != "" {
		distro := L.NewTable()
		L.SetField(distro, "id", lua.LString(info.Platform))
		L.SetField(distro, "family", lua.LString(info.Family))
		L.SetField(distro, "version", lua.LString(info.Version))
		L.SetField(t, "distro", distro)
	}

	// when(cond, value) returns value if cond holds, nil otherwise
	L.SetField(t, "when", L.NewFunction(func(L *lua.LState) int {
		if L.CheckBool(1) {
			L.Push(L.Get(2))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))

	L.SetGlobal("platform", makeReadOnly(L, t))
	return nil
}

// makeReadOnly returns an empty proxy whose metatable forwards reads to
// table and rejects writes.
func makeReadOnly(L *lua.LState, table *lua.LTable) *lua.LTable {
	mt := L.NewTable()
	L.SetField(mt, "__index", table)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("platform table is read-only and cannot be modified")
		return 0
	}))
	L.SetField(mt, "__metatable", lua.LString("protected"))

	proxy := L.NewTable()
	L.SetMetatable(proxy, mt)
	return proxy
}
