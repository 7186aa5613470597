package applier

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/edge/network"
	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// fakeNetwork records every call it receives instead of touching the host,
// grounded on the same fake-collaborator idiom the teacher's own
// agent/applier tests use for its WireGuard manager.
type fakeNetwork struct {
	calls []string
	errs  map[string]error

	interfaces map[string]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{errs: make(map[string]error), interfaces: make(map[string]bool)}
}

func (f *fakeNetwork) record(call string) error {
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeNetwork) ListInterfaces() ([]string, error) { return nil, f.record("ListInterfaces") }
func (f *fakeNetwork) FindInterface(name string) (network.Attributes, error) {
	return network.Attributes{Name: name}, f.record("FindInterface:" + name)
}
func (f *fakeNetwork) TryFindInterface(name string) (network.Attributes, bool, error) {
	found := f.interfaces[name]
	return network.Attributes{Name: name}, found, f.record("TryFindInterface:" + name)
}
func (f *fakeNetwork) CreateEmptyBridge(name string) error {
	f.interfaces[name] = true
	return f.record("CreateEmptyBridge:" + name)
}
func (f *fakeNetwork) CreateGretapV4Interface(name string, local, remote net.IP) error {
	f.interfaces[name] = true
	return f.record("CreateGretapV4Interface:" + name)
}
func (f *fakeNetwork) CreateVCanInterface(name string) error {
	f.interfaces[name] = true
	return f.record("CreateVCanInterface:" + name)
}
func (f *fakeNetwork) SetInterfaceUp(iface string) error { return f.record("SetInterfaceUp:" + iface) }
func (f *fakeNetwork) GetAttributes(iface string) (network.Attributes, error) {
	return network.Attributes{Name: iface}, f.record("GetAttributes:" + iface)
}
func (f *fakeNetwork) JoinInterfaceToBridge(iface, bridge string) error {
	return f.record("JoinInterfaceToBridge:" + iface + "->" + bridge)
}
func (f *fakeNetwork) DetachInterfaceFromBridge(iface string) error {
	return f.record("DetachInterfaceFromBridge:" + iface)
}
func (f *fakeNetwork) DeleteInterface(iface string) error {
	delete(f.interfaces, iface)
	return f.record("DeleteInterface:" + iface)
}
func (f *fakeNetwork) ConfigureCanBitrate(iface string, bitrateHz, samplePointPermille uint32, fd bool, dataBitrateHz, dataSamplePointPermille uint32) error {
	return f.record("ConfigureCanBitrate:" + iface)
}
func (f *fakeNetwork) RemoveAllCanRoutes() error { return f.record("RemoveAllCanRoutes") }
func (f *fakeNetwork) CreateCanRoute(src, dst string, canFD bool) error {
	return f.record("CreateCanRoute:" + src + "->" + dst)
}
func (f *fakeNetwork) CheckCanRouteExists(src, dst string, canFD bool) (bool, error) {
	return false, f.record("CheckCanRouteExists:" + src + "->" + dst)
}

func TestBridgeNodePresentCreatesBridge(t *testing.T) {
	f := newFakeNetwork()
	p := model.NewParameter(model.EthernetBridgeValue{Name: "br-opendut"}, model.Present)

	require.NoError(t, bridgeNode(f, p).apply(context.Background()))
	require.Equal(t, []string{"CreateEmptyBridge:br-opendut"}, f.calls)
}

func TestBridgeNodeAbsentDeletesBridge(t *testing.T) {
	f := newFakeNetwork()
	p := model.NewParameter(model.EthernetBridgeValue{Name: "br-opendut"}, model.Absent)

	require.NoError(t, bridgeNode(f, p).apply(context.Background()))
	require.Equal(t, []string{"DeleteInterface:br-opendut"}, f.calls)
}

func TestCanBridgesNodeReinstallsOnlyWhenRouteMissing(t *testing.T) {
	f := newFakeNetwork()
	p := model.NewParameter(model.CanBridgesValue{Src: "can0", Dst: "can1"}, model.Present)

	require.NoError(t, canBridgesNode(f, p).apply(context.Background()))
	require.Equal(t, []string{"CheckCanRouteExists:can0->can1", "CreateCanRoute:can0->can1"}, f.calls)
}

func TestCanBridgesNodeAbsentFlushesAllRoutes(t *testing.T) {
	f := newFakeNetwork()
	p := model.NewParameter(model.CanBridgesValue{Src: "can0", Dst: "can1"}, model.Absent)

	require.NoError(t, canBridgesNode(f, p).apply(context.Background()))
	require.Equal(t, []string{"RemoveAllCanRoutes"}, f.calls)
}

func TestJoinedInterfaceNodeJoinsAndDetaches(t *testing.T) {
	f := newFakeNetwork()
	present := model.NewParameter(model.JoinedInterfaceValue{Interface: "eth0", Bridge: "br-opendut"}, model.Present)
	require.NoError(t, joinedInterfaceNode(f, present).apply(context.Background()))
	require.Equal(t, []string{"JoinInterfaceToBridge:eth0->br-opendut"}, f.calls)

	f2 := newFakeNetwork()
	absent := model.NewParameter(model.JoinedInterfaceValue{Interface: "eth0", Bridge: "br-opendut"}, model.Absent)
	require.NoError(t, joinedInterfaceNode(f2, absent).apply(context.Background()))
	require.Equal(t, []string{"DetachInterfaceFromBridge:eth0"}, f2.calls)
}
