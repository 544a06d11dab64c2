/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

// IsAssignableFrom reports whether an instance of subclass can be used
// wherever superOrIface is required -- superOrIface is a superclass or
// an interface subclass implements, directly or transitively. Used by
// CHECKCAST/INSTANCEOF (spec §4.5).
func IsAssignableFrom(subclass, superOrIface string) bool {
	if subclass == superOrIface {
		return true
	}
	k := MethAreaFetch(subclass)
	if k == nil || k.Data == nil {
		return false
	}
	cd := k.Data
	for _, iface := range cd.Interfaces {
		if IsAssignableFrom(iface, superOrIface) {
			return true
		}
	}
	if cd.Superclass == "" {
		return false
	}
	return IsAssignableFrom(cd.Superclass, superOrIface)
}

// ResolveInstanceField walks className and its superclasses looking for
// an instance field named name. Returns the absolute field slot and its
// descriptor.
func ResolveInstanceField(className, name string) (slot int, desc string, found bool) {
	for className != "" {
		k := MethAreaFetch(className)
		if k == nil || k.Data == nil {
			return 0, "", false
		}
		cd := k.Data
		for key, idx := range cd.FieldIndex {
			if key.Name == name {
				return idx, key.Desc, true
			}
		}
		className = cd.Superclass
	}
	return 0, "", false
}

// ResolveStaticField walks className and its superclasses for a static
// field named name, returning the ClData that actually owns the storage
// (statics are never inherited-by-copy, only inherited-by-visibility) and
// its slot index.
func ResolveStaticField(className, name string) (owner *ClData, slot int, desc string, found bool) {
	for className != "" {
		k := MethAreaFetch(className)
		if k == nil || k.Data == nil {
			return nil, 0, "", false
		}
		cd := k.Data
		for key, idx := range cd.StaticFields {
			if key.Name == name {
				return cd, idx, key.Desc, true
			}
		}
		className = cd.Superclass
	}
	return nil, 0, "", false
}

// ResolveVTableMethod finds the VTableEntry bound to name+desc in
// classID's runtime class, the core of INVOKEVIRTUAL dispatch (spec §4.3
// "Dispatch table construction"): the receiver's actual class is always
// consulted, never the compile-time reference type. The lookup is a
// linear scan of the class's vtable by name and descriptor.
func ResolveVTableMethod(classID uint32, name, desc string) (VTableEntry, bool) {
	cd := LookupClassByID(classID)
	if cd == nil {
		return VTableEntry{}, false
	}
	for _, e := range cd.VTable {
		if e.M.Name == name && e.M.Descriptor == desc {
			return e, true
		}
	}
	return VTableEntry{}, false
}

// ResolveInterfaceMethod dispatches an INVOKEINTERFACE call: ifaceName's
// method name+desc is turned into its interned id, then looked up in the
// receiver's own IfaceDispatch table (spec §4.3 "Interface table").
func ResolveInterfaceMethod(classID uint32, name, desc string) (VTableEntry, bool) {
	id, ok := LookupIfaceMethodID(name + desc)
	if !ok {
		return VTableEntry{}, false
	}
	cd := LookupClassByID(classID)
	if cd == nil {
		return VTableEntry{}, false
	}
	e, ok := cd.IfaceDispatch[id]
	return e, ok
}
