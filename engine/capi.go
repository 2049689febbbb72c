package engine

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/marcut/runtime-bridge/abi"
	"github.com/marcut/runtime-bridge/errors"
)

// methVarArgs is the runtime's calling convention flag for a callback
// receiving positional arguments as a tuple.
const methVarArgs = 0x0001

// methodDef mirrors the runtime's C method descriptor: name, function
// pointer, flags (padded to pointer alignment), docstring.
type methodDef struct {
	name  *byte
	meth  uintptr
	flags int32
	_     int32
	doc   *byte
}

// DynAPI is the production API implementation: every entry point is a
// function bound at load time through the symbol resolver. Its Session
// methods drive the runtime's object protocol with no build-time
// dependency on the runtime's headers.
//
// All methods except Interrupt must run on the worker thread.
type DynAPI struct {
	profile  Profile
	resolver *abi.Resolver

	// Core control surface, required at load time.
	isInitialized func() int32
	initializeEx  func(int32)
	lockEnsure    func() int32
	lockRelease   func(int32)
	setInterrupt  func()
	checkSignals  func() int32
	errClear      func()

	// Object protocol, resolved opportunistically. Missing entries
	// degrade the corresponding Session method, not loading.
	runSimpleString   func(string) int32
	saveThread        func() uintptr
	importModule      func(string) uintptr
	getAttrString     func(uintptr, string) uintptr
	objectCall        func(uintptr, uintptr, uintptr) uintptr
	objectStr         func(uintptr) uintptr
	objectIsTrue      func(uintptr) int32
	tupleNew          func(int) uintptr
	tupleSize         func(uintptr) int
	tupleGetItem      func(uintptr, int) uintptr
	tupleSetItem      func(uintptr, int, uintptr) int32
	listSize          func(uintptr) int
	listGetItem       func(uintptr, int) uintptr
	dictNew           func() uintptr
	dictSetItemString func(uintptr, string, uintptr) int32
	dictItems         func(uintptr) uintptr
	longFromLongLong  func(int64) uintptr
	longAsLongLong    func(uintptr) int64
	floatFromDouble   func(float64) uintptr
	floatAsDouble     func(uintptr) float64
	boolFromLong      func(int64) uintptr
	unicodeFromString func(string) uintptr
	unicodeAsUTF8     func(uintptr) uintptr
	errOccurred       func() uintptr
	errFetch          func(unsafe.Pointer, unsafe.Pointer, unsafe.Pointer)
	errNormalize      func(unsafe.Pointer, unsafe.Pointer, unsafe.Pointer)
	incRef            func(uintptr)
	decRef            func(uintptr)
	cfunctionNewEx    func(unsafe.Pointer, uintptr, uintptr) uintptr

	// Progress callback plumbing: one trampoline for the API's life,
	// retargeted per call. The method descriptor and its name bytes are
	// pinned here because the runtime keeps pointers into them.
	trampoline uintptr
	cbName     []byte
	cbDef      *methodDef
	onProgress func([]any)

	// Cached reference to the runtime's none singleton.
	none uintptr
}

// optionalSymbols maps DynAPI fields to the entry points they bind,
// beyond the profile's required set.
func (a *DynAPI) optionalSymbols() map[string]any {
	return map[string]any{
		"PyRun_SimpleString":       &a.runSimpleString,
		"PyEval_SaveThread":        &a.saveThread,
		"PyImport_ImportModule":    &a.importModule,
		"PyObject_GetAttrString":   &a.getAttrString,
		"PyObject_Call":            &a.objectCall,
		"PyObject_Str":             &a.objectStr,
		"PyObject_IsTrue":          &a.objectIsTrue,
		"PyTuple_New":              &a.tupleNew,
		"PyTuple_Size":             &a.tupleSize,
		"PyTuple_GetItem":          &a.tupleGetItem,
		"PyTuple_SetItem":          &a.tupleSetItem,
		"PyList_Size":              &a.listSize,
		"PyList_GetItem":           &a.listGetItem,
		"PyDict_New":               &a.dictNew,
		"PyDict_SetItemString":     &a.dictSetItemString,
		"PyDict_Items":             &a.dictItems,
		"PyLong_FromLongLong":      &a.longFromLongLong,
		"PyLong_AsLongLong":        &a.longAsLongLong,
		"PyFloat_FromDouble":       &a.floatFromDouble,
		"PyFloat_AsDouble":         &a.floatAsDouble,
		"PyBool_FromLong":          &a.boolFromLong,
		"PyUnicode_FromString":     &a.unicodeFromString,
		"PyUnicode_AsUTF8":         &a.unicodeAsUTF8,
		"PyErr_Occurred":           &a.errOccurred,
		"PyErr_Fetch":              &a.errFetch,
		"PyErr_NormalizeException": &a.errNormalize,
		"Py_IncRef":                &a.incRef,
		"Py_DecRef":                &a.decRef,
		"PyCFunction_NewEx":        &a.cfunctionNewEx,
	}
}

// NewDynAPI validates the profile's required entry points against the
// resolver and binds the full call surface. A missing required symbol
// fails loading with the complete missing list; optional object-protocol
// symbols are bound when present.
func NewDynAPI(resolver *abi.Resolver, profile Profile) (*DynAPI, error) {
	a := &DynAPI{profile: profile, resolver: resolver}

	required := profile.RequiredSymbols()
	resolved := resolver.ResolveAll(required)
	if missing := resolver.Missing(); len(missing) > 0 {
		Logger().Warn("runtime library incomplete",
			zap.String("profile", profile.Name),
			zap.Strings("missing", missing))
		return nil, errors.RuntimeLoadFailed("runtime library incomplete",
			errors.NewMissingSymbolsError(missing))
	}

	purego.RegisterFunc(&a.isInitialized, uintptr(resolved[profile.InitCheckSymbol]))
	purego.RegisterFunc(&a.initializeEx, uintptr(resolved[profile.InitSymbol]))
	purego.RegisterFunc(&a.lockEnsure, uintptr(resolved[profile.LockAcquireSymbol]))
	purego.RegisterFunc(&a.lockRelease, uintptr(resolved[profile.LockReleaseSymbol]))
	purego.RegisterFunc(&a.setInterrupt, uintptr(resolved[profile.InterruptSymbol]))
	purego.RegisterFunc(&a.checkSignals, uintptr(resolved[profile.SignalCheckSymbol]))
	purego.RegisterFunc(&a.errClear, uintptr(resolved[profile.ErrorClearSymbol]))

	for name, fptr := range a.optionalSymbols() {
		if sym, ok := resolver.Lookup(name); ok {
			purego.RegisterFunc(fptr, uintptr(sym))
		}
	}

	a.trampoline = purego.NewCallback(func(self, args uintptr) uintptr {
		return a.progressTrampoline(args)
	})
	a.cbName = append([]byte("progress_callback"), 0)
	a.cbDef = &methodDef{
		name:  &a.cbName[0],
		meth:  a.trampoline,
		flags: methVarArgs,
	}
	return a, nil
}

func (a *DynAPI) Initialized() bool {
	return a.isInitialized() != 0
}

// Initialize brings the interpreter up without its own signal handlers
// and then parks the initial thread state so the lock can be taken from
// the gate used by every later call.
func (a *DynAPI) Initialize() error {
	a.initializeEx(0)
	if a.isInitialized() == 0 {
		return errors.CallFailed("runtime reported uninitialized after init", nil)
	}
	if a.saveThread != nil {
		a.saveThread()
	}
	return nil
}

func (a *DynAPI) Acquire() (Session, func(), error) {
	handle := LockHandle(a.lockEnsure())
	release := func() {
		a.errClear()
		a.lockRelease(int32(handle))
	}
	return a, release, nil
}

func (a *DynAPI) Interrupt() {
	a.setInterrupt()
}

// Close releases nothing runtime-side: the library handle belongs to the
// resolver and the interpreter is never finalized.
func (a *DynAPI) Close() error {
	return nil
}

// --- Session ---

func (a *DynAPI) RunString(code string) error {
	if a.runSimpleString == nil {
		return errors.Unsupported("code execution entry point not exported")
	}
	if a.runSimpleString(code) != 0 {
		return errors.CallFailed(fmt.Sprintf("runtime rejected code %q", abbreviate(code, 80)), nil)
	}
	return nil
}

func (a *DynAPI) Import(name string) error {
	if a.importModule == nil {
		return errors.Unsupported("module import entry point not exported")
	}
	mod := a.importModule(name)
	if mod == 0 {
		return a.fetchError(fmt.Sprintf("import %s failed", name))
	}
	a.decref(mod)
	return nil
}

func (a *DynAPI) Call(module, fn string, kwargs map[string]any, onProgress func([]any)) (any, error) {
	if a.importModule == nil || a.getAttrString == nil || a.objectCall == nil ||
		a.dictNew == nil || a.dictSetItemString == nil || a.tupleNew == nil {
		return nil, errors.Unsupported("object protocol not exported by this runtime build")
	}

	mod := a.importModule(module)
	if mod == 0 {
		return nil, a.fetchError(fmt.Sprintf("import %s failed", module))
	}
	defer a.decref(mod)

	callable := a.getAttrString(mod, fn)
	if callable == 0 {
		return nil, a.fetchError(fmt.Sprintf("%s.%s not found", module, fn))
	}
	defer a.decref(callable)

	kw := a.dictNew()
	if kw == 0 {
		return nil, a.fetchError("keyword dict allocation failed")
	}
	defer a.decref(kw)

	for key, value := range kwargs {
		obj, err := a.encode(value)
		if err != nil {
			return nil, err
		}
		rc := a.dictSetItemString(kw, key, obj)
		a.decref(obj)
		if rc != 0 {
			return nil, a.fetchError(fmt.Sprintf("setting keyword %s failed", key))
		}
	}

	if onProgress != nil {
		if a.cfunctionNewEx == nil {
			return nil, errors.Unsupported("callback construction entry point not exported")
		}
		cb := a.cfunctionNewEx(unsafe.Pointer(a.cbDef), 0, 0)
		if cb == 0 {
			return nil, a.fetchError("progress callback construction failed")
		}
		rc := a.dictSetItemString(kw, "progress_callback", cb)
		a.decref(cb)
		if rc != 0 {
			return nil, a.fetchError("attaching progress callback failed")
		}
		a.onProgress = onProgress
		defer func() { a.onProgress = nil }()
	}

	empty := a.tupleNew(0)
	if empty == 0 {
		return nil, a.fetchError("argument tuple allocation failed")
	}
	defer a.decref(empty)

	result := a.objectCall(callable, empty, kw)
	if result == 0 {
		return nil, a.fetchError(fmt.Sprintf("%s.%s raised", module, fn))
	}
	defer a.decref(result)

	return a.decode(result), nil
}

func (a *DynAPI) CheckSignals() error {
	if a.checkSignals() == 0 {
		return nil
	}
	return a.fetchError("pending interrupt")
}

// progressTrampoline receives one callback invocation from the runtime:
// args is the positional tuple. It always returns a new none reference,
// since returning null would poison the pipeline's callback site.
func (a *DynAPI) progressTrampoline(args uintptr) uintptr {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("progress handler panicked", zap.Any("panic", r))
		}
	}()

	if a.onProgress != nil && a.tupleSize != nil && a.tupleGetItem != nil {
		n := a.tupleSize(args)
		decoded := make([]any, 0, n)
		for i := 0; i < n; i++ {
			decoded = append(decoded, a.decode(a.tupleGetItem(args, i)))
		}
		a.onProgress(decoded)
	}
	return a.noneRef()
}

// --- value conversion ---

// encode converts a Go keyword value into an owned runtime object.
func (a *DynAPI) encode(v any) (uintptr, error) {
	var obj uintptr
	switch value := v.(type) {
	case nil:
		obj = a.noneRef()
	case bool:
		if a.boolFromLong == nil {
			return 0, errors.Unsupported("boolean construction not exported")
		}
		n := int64(0)
		if value {
			n = 1
		}
		obj = a.boolFromLong(n)
	case int:
		obj = a.encodeInt(int64(value))
	case int64:
		obj = a.encodeInt(value)
	case float64:
		if a.floatFromDouble == nil {
			return 0, errors.Unsupported("float construction not exported")
		}
		obj = a.floatFromDouble(value)
	case string:
		if a.unicodeFromString == nil {
			return 0, errors.Unsupported("string construction not exported")
		}
		obj = a.unicodeFromString(value)
	default:
		return 0, errors.Invalid(fmt.Sprintf("cannot encode %T as a runtime value", v))
	}
	if obj == 0 {
		return 0, a.fetchError(fmt.Sprintf("encoding %T failed", v))
	}
	return obj, nil
}

func (a *DynAPI) encodeInt(v int64) uintptr {
	if a.longFromLongLong == nil {
		return 0
	}
	return a.longFromLongLong(v)
}

// decode converts a runtime object (borrowed reference) into a Go value.
// Unhandled types decode to their display string.
func (a *DynAPI) decode(obj uintptr) any {
	if obj == 0 {
		return nil
	}
	switch a.typeName(obj) {
	case "NoneType":
		return nil
	case "bool":
		if a.objectIsTrue == nil {
			return nil
		}
		return a.objectIsTrue(obj) != 0
	case "int":
		if a.longAsLongLong == nil {
			return nil
		}
		return a.longAsLongLong(obj)
	case "float":
		if a.floatAsDouble == nil {
			return nil
		}
		return a.floatAsDouble(obj)
	case "str":
		return a.stringValue(obj)
	case "tuple":
		if a.tupleSize == nil || a.tupleGetItem == nil {
			return nil
		}
		n := a.tupleSize(obj)
		seq := make([]any, 0, n)
		for i := 0; i < n; i++ {
			seq = append(seq, a.decode(a.tupleGetItem(obj, i)))
		}
		return seq
	case "list":
		if a.listSize == nil || a.listGetItem == nil {
			return nil
		}
		n := a.listSize(obj)
		seq := make([]any, 0, n)
		for i := 0; i < n; i++ {
			seq = append(seq, a.decode(a.listGetItem(obj, i)))
		}
		return seq
	case "dict":
		return a.decodeDict(obj)
	default:
		return a.display(obj)
	}
}

// decodeDict walks the dict through its item list, keeping string keys
// as-is and rendering non-string keys through their display form.
func (a *DynAPI) decodeDict(obj uintptr) any {
	if a.dictItems == nil || a.listSize == nil || a.listGetItem == nil ||
		a.tupleSize == nil || a.tupleGetItem == nil {
		return nil
	}
	items := a.dictItems(obj)
	if items == 0 {
		a.errClear()
		return nil
	}
	defer a.decref(items)

	n := a.listSize(items)
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		kv := a.listGetItem(items, i)
		if kv == 0 || a.tupleSize(kv) != 2 {
			continue
		}
		keyObj := a.tupleGetItem(kv, 0)
		var key string
		if a.typeName(keyObj) == "str" {
			key = a.stringValue(keyObj)
		} else {
			key = a.display(keyObj)
		}
		m[key] = a.decode(a.tupleGetItem(kv, 1))
	}
	return m
}

// typeName returns the object's class name, the version-stable way to
// classify values without access to the runtime's type singletons.
func (a *DynAPI) typeName(obj uintptr) string {
	if a.getAttrString == nil {
		return ""
	}
	class := a.getAttrString(obj, "__class__")
	if class == 0 {
		a.errClear()
		return ""
	}
	defer a.decref(class)

	name := a.getAttrString(class, "__name__")
	if name == 0 {
		a.errClear()
		return ""
	}
	defer a.decref(name)
	return a.stringValue(name)
}

// stringValue reads a str object's UTF-8 bytes.
func (a *DynAPI) stringValue(obj uintptr) string {
	if a.unicodeAsUTF8 == nil {
		return ""
	}
	p := a.unicodeAsUTF8(obj)
	if p == 0 {
		a.errClear()
		return ""
	}
	return goString(p)
}

// display renders any object through its str() form.
func (a *DynAPI) display(obj uintptr) string {
	if a.objectStr == nil {
		return ""
	}
	s := a.objectStr(obj)
	if s == 0 {
		a.errClear()
		return ""
	}
	defer a.decref(s)
	return a.stringValue(s)
}

// noneRef returns a new reference to the runtime's none singleton,
// fetched once through the builtins module.
func (a *DynAPI) noneRef() uintptr {
	if a.none == 0 && a.importModule != nil && a.getAttrString != nil {
		builtins := a.importModule("builtins")
		if builtins != 0 {
			a.none = a.getAttrString(builtins, "None")
			a.decref(builtins)
		}
		if a.none == 0 {
			a.errClear()
		}
	}
	if a.none != 0 && a.incRef != nil {
		a.incRef(a.none)
	}
	return a.none
}

// fetchError converts the runtime's pending exception into a foreign
// error with type, message, and a bounded traceback. With no pending
// exception it degrades to a plain call failure carrying context.
func (a *DynAPI) fetchError(context string) error {
	if a.errOccurred == nil || a.errFetch == nil || a.errOccurred() == 0 {
		return errors.CallFailed(context, nil)
	}

	var ptype, pvalue, ptb uintptr
	a.errFetch(unsafe.Pointer(&ptype), unsafe.Pointer(&pvalue), unsafe.Pointer(&ptb))
	if a.errNormalize != nil {
		a.errNormalize(unsafe.Pointer(&ptype), unsafe.Pointer(&pvalue), unsafe.Pointer(&ptb))
	}
	defer func() {
		a.decref(ptype)
		a.decref(pvalue)
		a.decref(ptb)
	}()

	typeName := ""
	if ptype != 0 && a.getAttrString != nil {
		if nameObj := a.getAttrString(ptype, "__name__"); nameObj != 0 {
			typeName = a.stringValue(nameObj)
			a.decref(nameObj)
		} else {
			a.errClear()
		}
	}
	message := ""
	if pvalue != 0 {
		message = a.display(pvalue)
	}
	traceback := a.formatTraceback(ptype, pvalue, ptb)

	return errors.CallFailed(context, errors.NewForeign(typeName, message, traceback))
}

// formatTraceback renders the exception through the runtime's own
// traceback formatter. Best-effort: any failure yields an empty string
// with error state cleared.
func (a *DynAPI) formatTraceback(ptype, pvalue, ptb uintptr) string {
	if ptype == 0 || pvalue == 0 || ptb == 0 {
		return ""
	}
	if a.importModule == nil || a.getAttrString == nil || a.objectCall == nil ||
		a.tupleNew == nil || a.tupleSetItem == nil || a.incRef == nil ||
		a.listSize == nil || a.listGetItem == nil {
		return ""
	}

	tbMod := a.importModule("traceback")
	if tbMod == 0 {
		a.errClear()
		return ""
	}
	defer a.decref(tbMod)

	format := a.getAttrString(tbMod, "format_exception")
	if format == 0 {
		a.errClear()
		return ""
	}
	defer a.decref(format)

	args := a.tupleNew(3)
	if args == 0 {
		a.errClear()
		return ""
	}
	defer a.decref(args)

	// Tuple insertion steals references; balance with increfs so the
	// caller's fetch results stay alive.
	for i, obj := range []uintptr{ptype, pvalue, ptb} {
		a.incRef(obj)
		if a.tupleSetItem(args, i, obj) != 0 {
			a.errClear()
			return ""
		}
	}

	lines := a.objectCall(format, args, 0)
	if lines == 0 {
		a.errClear()
		return ""
	}
	defer a.decref(lines)

	var sb strings.Builder
	for i, n := 0, a.listSize(lines); i < n; i++ {
		line := a.listGetItem(lines, i)
		if line != 0 && a.typeName(line) == "str" {
			sb.WriteString(a.stringValue(line))
		}
	}
	return sb.String()
}

func (a *DynAPI) decref(obj uintptr) {
	if obj != 0 && a.decRef != nil {
		a.decRef(obj)
	}
}

// goString reads a NUL-terminated C string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var b []byte
	for i := uintptr(0); ; i++ {
		c := *(*byte)(unsafe.Pointer(p + i))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}

// abbreviate truncates s for log and error contexts.
func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
