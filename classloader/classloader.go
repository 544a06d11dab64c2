/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"fmt"
	"sync"

	"jelatine/classpath"
	"jelatine/excNames"
	"jelatine/gc"
	"jelatine/trace"
	"jelatine/translator"
	"jelatine/types"
)

// nextClassID hands out dense class ids above the well-known bootstrap
// ids, matching spec §4.3's "resolution algorithm" requirement that
// every linked class have a stable, small integer identity (the header
// package embeds exactly this id, not a pointer, in every object header).
var (
	classIDLock sync.Mutex
	nextClassID = uint32(types.FirstDynamicClassID)
)

func allocateClassID() uint32 {
	classIDLock.Lock()
	defer classIDLock.Unlock()
	id := nextClassID
	nextClassID++
	return id
}

// Load resolves className against the boot or application classpath
// (classpath.IsBootstrapName decides which), parses it, links it against
// its already-loaded superclass and interfaces, and installs it in the
// method area. Returns the existing Klass without reparsing if className
// is already loaded -- spec §4.3's "a class is loaded and linked at most
// once" invariant.
func Load(cp *classpath.Path, bootCp *classpath.Path, className string) (*Klass, error) {
	if k := MethAreaFetch(className); k != nil {
		return k, nil
	}

	search := cp
	if classpath.IsBootstrapName(className) {
		search = bootCp
	}

	raw, err := search.Open(className)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", excNames.ClassNotFoundException, err)
	}

	cd, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", excNames.ClassFormatError, err)
	}
	if cd.Name != className {
		return nil, fmt.Errorf("%s: class file for %s actually declares %s",
			excNames.NoClassDefFoundError, className, cd.Name)
	}

	k := &Klass{Status: StatusParsed, Loader: "bootstrap", Data: cd}
	MethAreaInsert(className, k)

	trace.Trace("classloader: parsed " + className)

	if cd.Superclass != "" {
		if _, err := Load(cp, bootCp, cd.Superclass); err != nil {
			return nil, err
		}
	}
	for _, iface := range cd.Interfaces {
		if _, err := Load(cp, bootCp, iface); err != nil {
			return nil, err
		}
	}

	if err := link(k); err != nil {
		return nil, err
	}

	return k, nil
}

// link assigns field slots (inherited fields first, then this class's
// own, matching jelatine's class_t layout which places superclass fields
// at lower offsets so a subclass reference can be treated as its
// superclass's layout by simple truncation), builds the virtual-dispatch
// and interface tables, lays out static storage, translates every
// method's bytecode, and registers the class's object shape with the
// collector.
func link(k *Klass) error {
	cd := k.Data
	cd.ClassID = allocateClassID()

	var super *ClData
	if cd.Superclass != "" {
		if sk := MethAreaFetch(cd.Superclass); sk != nil {
			super = sk.Data
		}
	}

	fieldWords := 0
	var refSlots []int
	fieldIndex := map[FieldKey]int{}
	if super != nil {
		fieldWords = super.FieldWords
		if shape, ok := lookupShape(super.ClassID); ok {
			refSlots = append(refSlots, shape.RefFieldSlots...)
		}
		for k, v := range super.FieldIndex {
			fieldIndex[k] = v
		}
	}

	var staticSlots []StaticSlot
	staticIndex := map[FieldKey]int{}

	for _, f := range cd.Fields {
		key := FieldKey{Name: f.Name, Desc: f.Descriptor}
		if f.IsStatic {
			f.Slot = len(staticSlots)
			staticIndex[key] = f.Slot
			staticSlots = append(staticSlots, StaticSlot{})
			continue
		}
		f.Slot = fieldWords
		fieldIndex[key] = f.Slot
		if isReferenceDescriptor(f.Descriptor) {
			refSlots = append(refSlots, f.Slot)
		}
		fieldWords++
	}
	cd.FieldWords = fieldWords
	cd.FieldIndex = fieldIndex
	cd.StaticFields = staticIndex
	cd.StaticSlots = staticSlots

	buildVTable(cd, super)
	buildIfaceDispatch(cd, super)
	registerClassID(cd)

	gc.RegisterClassShape(cd.ClassID, gc.ClassShape{
		FieldWords:    fieldWords,
		RefFieldSlots: refSlots,
	})

	for _, m := range cd.Methods {
		if m.IsNative || m.IsAbstract || len(m.Code) == 0 {
			continue
		}
		tm := &translator.Method{
			Code:           m.Code,
			MaxStack:       m.MaxStack,
			MaxLocals:      m.MaxLocals,
			IsStatic:       m.IsStatic,
			IsSynchronized: m.AccessFlags&0x0020 != 0,
		}
		for _, e := range m.ExceptionTable {
			tm.ExceptionTable = append(tm.ExceptionTable, translator.ExceptionHandler{
				StartPC: e.StartPC, EndPC: e.EndPC, HandlerPC: e.HandlerPC, CatchClassIndex: e.CatchType,
			})
		}
		starts, err := translator.Translate(tm)
		if err != nil {
			return fmt.Errorf("%s: %s.%s%s: %w", excNames.VerifyError, cd.Name, m.Name, m.Descriptor, err)
		}
		m.InstrStarts = starts
	}

	cd.ClInit = types.ClInitNotRun
	if _, ok := cd.MethodByID["<clinit>()V"]; !ok {
		cd.ClInit = types.NoClinit
	}

	k.Status = StatusLinked
	trace.Trace(fmt.Sprintf("classloader: linked %s as class id %d", cd.Name, cd.ClassID))
	return nil
}

// buildVTable copies super's virtual-dispatch slots in order, then walks
// cd's own declared methods: a method matching an inherited slot's
// name+descriptor overrides it in place (same index -- spec §4.3's
// "Dispatch monotonicity" property), and any other concrete virtual
// method is appended as a new slot. Static methods, <init>, and <clinit>
// never participate in virtual dispatch.
func buildVTable(cd *ClData, super *ClData) {
	var vtable []VTableEntry
	if super != nil {
		vtable = append(vtable, super.VTable...)
	}

	for _, m := range cd.Methods {
		if m.IsStatic || m.Name == "<init>" || m.Name == "<clinit>" {
			continue
		}
		overridden := false
		for i, e := range vtable {
			if e.M.Name == m.Name && e.M.Descriptor == m.Descriptor {
				vtable[i] = VTableEntry{M: m, Owner: cd.Name}
				overridden = true
				break
			}
		}
		if !overridden {
			vtable = append(vtable, VTableEntry{M: m, Owner: cd.Name})
		}
	}
	cd.VTable = vtable
}

// buildIfaceDispatch starts from super's interface-method bindings, then
// binds every id-interned interface method this class's own interfaces
// declare to whichever vtable slot currently implements it (spec §4.3
// "Interface table"). A class that doesn't implement a given interface
// method leaves that id unbound; INVOKEINTERFACE throws
// VirtualMachineError for a missing binding rather than crashing.
func buildIfaceDispatch(cd *ClData, super *ClData) {
	dispatch := map[int]VTableEntry{}
	if super != nil {
		for id, e := range super.IfaceDispatch {
			dispatch[id] = e
		}
	}

	for _, iface := range cd.Interfaces {
		ik := MethAreaFetch(iface)
		if ik == nil || ik.Data == nil {
			continue
		}
		for _, im := range ik.Data.Methods {
			id := internIfaceMethodID(im.Name + im.Descriptor)
			for _, e := range cd.VTable {
				if e.M.Name == im.Name && e.M.Descriptor == im.Descriptor {
					dispatch[id] = e
					break
				}
			}
		}
	}
	cd.IfaceDispatch = dispatch
}

// lookupShape is a thin indirection so link() doesn't need to import
// every field of gc.ClassShape's construction logic twice; it exists
// purely to read back a previously registered shape's ref-slot list.
func lookupShape(classID uint32) (gc.ClassShape, bool) {
	return gc.ShapeOf(classID)
}

func isReferenceDescriptor(desc string) bool {
	if desc == "" {
		return false
	}
	switch desc[0] {
	case 'L', '[':
		return true
	default:
		return false
	}
}

// RunClinit executes className's <clinit>, and its superclasses'
// <clinit> methods first if they have not yet run, matching
// jvm/initializerBlock.go's superclass-ascent algorithm and the
// ClInitInProgress marker that makes circular <clinit> references
// (spec §4.3) a no-op the second time around instead of infinite
// recursion.
//
// runner is supplied by the interpreter package (this package cannot
// import it without an import cycle: the interpreter needs classloader
// to resolve classes, so classloader cannot need the interpreter to run
// their <clinit> code).
func RunClinit(className string, runner func(classID uint32, method *Method) error) error {
	k := MethAreaFetch(className)
	if k == nil || k.Data == nil {
		return fmt.Errorf("%s: %s", excNames.NoClassDefFoundError, className)
	}
	cd := k.Data

	cond := cd.cond()
	cond.L.Lock()
	for cd.ClInit == types.ClInitInProgress {
		cond.Wait()
	}
	switch cd.ClInit {
	case types.NoClinit:
		cond.L.Unlock()
		if cd.Superclass != "" {
			return RunClinit(cd.Superclass, runner)
		}
		return nil
	case types.ClInitRun:
		cond.L.Unlock()
		return nil
	case types.ClInitErroneous:
		cond.L.Unlock()
		return fmt.Errorf("%s: %s (previous initialization attempt failed)", excNames.NoClassDefFoundError, className)
	}
	cd.ClInit = types.ClInitInProgress
	cond.L.Unlock()

	if cd.Superclass != "" {
		if err := RunClinit(cd.Superclass, runner); err != nil {
			cond.L.Lock()
			cd.ClInit = types.ClInitErroneous
			cond.L.Unlock()
			cond.Broadcast()
			return err
		}
	}

	m := cd.MethodByID["<clinit>()V"]
	err := runner(cd.ClassID, m)

	cond.L.Lock()
	if err != nil {
		cd.ClInit = types.ClInitErroneous
	} else {
		cd.ClInit = types.ClInitRun
	}
	cond.L.Unlock()
	cond.Broadcast()

	if err != nil {
		return fmt.Errorf("%s: %s: %w", excNames.NoClassDefFoundError, className, err)
	}
	return nil
}
