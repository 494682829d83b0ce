package mercury

import (
	"testing"
	"time"
)

// fakeOps is a minimal Ops implementation for exercising Initialize's
// dispatch table without dragging in a real transport plugin.
type fakeOps struct {
	protocol   string
	initCalls  int
	lastListen bool
	failInit   bool
}

func (f *fakeOps) CheckProtocol(protocol string) bool { return protocol == f.protocol }

func (f *fakeOps) Initialize(class *Class, addr ParsedAddress, listen bool) (PluginState, error) {
	f.initCalls++
	f.lastListen = listen
	if f.failInit {
		return nil, NewError(Fault)
	}
	return &fakePluginState{}, nil
}

type fakePluginState struct {
	finalizeCalls  int
	lookupCalls    int
	progressCalls  int
	progressResult bool
	progressErr    error
	progressHook   func(time.Duration) (bool, error)
}

func (s *fakePluginState) Finalize() error {
	s.finalizeCalls++
	return nil
}

func (s *fakePluginState) Lookup(ctx *Context, op *OpID, target ParsedAddress) error {
	s.lookupCalls++
	return nil
}

func (s *fakePluginState) Progress(timeout time.Duration) (bool, error) {
	s.progressCalls++
	if s.progressHook != nil {
		return s.progressHook(timeout)
	}
	return s.progressResult, s.progressErr
}

// withFakeRegistry registers ops for the duration of a test and restores the
// global registry afterward, since Register has no corresponding Unregister.
func withFakeRegistry(t *testing.T, ops ...*fakeOps) {
	saved := registry
	registry = nil
	t.Cleanup(func() { registry = saved })
	for _, o := range ops {
		Register(o.protocol, o)
	}
}

func TestInitializeDispatchesToMatchingProtocol(t *testing.T) {
	fo := &fakeOps{protocol: "fake"}
	withFakeRegistry(t, fo)

	class, err := Initialize("fake://host", true, ModeNoRetry)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if fo.initCalls != 1 {
		t.Fatalf("initCalls = %d, want 1", fo.initCalls)
	}
	if !fo.lastListen {
		t.Fatal("listen flag not propagated to Initialize")
	}
	if class.Protocol != "fake" || class.Mode != ModeNoRetry || !class.Listen {
		t.Fatalf("unexpected class fields: %+v", class)
	}
}

func TestInitializeSkipsNonMatchingProtocolWhenClassNotSet(t *testing.T) {
	a := &fakeOps{protocol: "a"}
	b := &fakeOps{protocol: "b"}
	withFakeRegistry(t, a, b)

	class, err := Initialize("b://host", false, 0)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if a.initCalls != 0 || b.initCalls != 1 {
		t.Fatalf("a.initCalls=%d b.initCalls=%d, want 0,1", a.initCalls, b.initCalls)
	}
	if class.Protocol != "b" {
		t.Fatalf("class.Protocol = %q, want b", class.Protocol)
	}
}

func TestInitializeUnknownProtocolFails(t *testing.T) {
	withFakeRegistry(t, &fakeOps{protocol: "a"})

	if _, err := Initialize("nonexistent://host", false, 0); KindOf(err) != ProtoNotSupport {
		t.Fatalf("Initialize(nonexistent) = %v, want ProtoNotSupport", err)
	}
}

func TestInitializePropagatesInitError(t *testing.T) {
	withFakeRegistry(t, &fakeOps{protocol: "fake", failInit: true})

	if _, err := Initialize("fake://host", false, 0); KindOf(err) != Fault {
		t.Fatalf("Initialize = %v, want Fault", err)
	}
}

func TestClassFinalizeDelegatesToState(t *testing.T) {
	state := &fakePluginState{}
	class := &Class{State: state}
	if err := class.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if state.finalizeCalls != 1 {
		t.Fatalf("finalizeCalls = %d, want 1", state.finalizeCalls)
	}
}

func TestClassFinalizeNoopWithoutState(t *testing.T) {
	class := &Class{}
	if err := class.Finalize(); err != nil {
		t.Fatalf("Finalize with nil state: %v", err)
	}
}

func TestClassLookupParsesAndDelegates(t *testing.T) {
	state := &fakePluginState{}
	class := &Class{State: state}
	op := NewOpID()
	if err := class.Lookup(nil, op, "fake://host"); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if state.lookupCalls != 1 {
		t.Fatalf("lookupCalls = %d, want 1", state.lookupCalls)
	}
}

func TestClassLookupRejectsMalformedTarget(t *testing.T) {
	state := &fakePluginState{}
	class := &Class{State: state}
	if err := class.Lookup(nil, nil, ""); KindOf(err) != ProtoNotSupport {
		t.Fatalf("Lookup(\"\") = %v, want ProtoNotSupport", err)
	}
	if state.lookupCalls != 0 {
		t.Fatal("Lookup should not have reached the plugin state")
	}
}

func TestClassProgressWithoutGatePassesThrough(t *testing.T) {
	state := &fakePluginState{progressResult: true}
	class := &Class{State: state}
	ctx := NewContext(class, false)

	progressed, err := class.Progress(ctx, time.Millisecond)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !progressed || state.progressCalls != 1 {
		t.Fatalf("progressed=%v calls=%d, want true,1", progressed, state.progressCalls)
	}
}

func TestClassProgressWithGateSerializesEntry(t *testing.T) {
	state := &fakePluginState{progressResult: true}
	class := &Class{State: state}
	ctx := NewContext(class, true)

	progressed, err := class.Progress(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !progressed || state.progressCalls != 1 {
		t.Fatalf("progressed=%v calls=%d, want true,1", progressed, state.progressCalls)
	}
}
