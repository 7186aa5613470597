// Package network implements the edge network manager (L7): a pure,
// configuration-unaware host-side API over bridge/gretap/VCAN/cangw
// primitives, backed by shelling out to the `ip` and `cangw`
// tools. Grounded on the teacher's exec.Command-driven linuxManager
// (api_mesh/internal/wireguard/linux.go) — same idiom (build argv, run,
// wrap non-zero exit with combined output in the error), generalised from
// WireGuard interface management to this repository's interface kinds.
package network

import (
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// Attributes is the subset of `ip link show` output callers care about.
type Attributes struct {
	Name string
	Up   bool
	MTU  int
}

// Manager is the host network API consumed by the edge configuration
// applier (L6). Implementations must make every mutating call idempotent:
// creating an already-existing object and deleting an already-absent one
// both succeed silently.
type Manager interface {
	ListInterfaces() ([]string, error)
	FindInterface(name string) (Attributes, error)
	TryFindInterface(name string) (Attributes, bool, error)

	CreateEmptyBridge(name string) error
	CreateGretapV4Interface(name string, local, remote net.IP) error
	CreateVCanInterface(name string) error

	SetInterfaceUp(iface string) error
	GetAttributes(iface string) (Attributes, error)
	JoinInterfaceToBridge(iface, bridge string) error
	DetachInterfaceFromBridge(iface string) error
	DeleteInterface(iface string) error

	// ConfigureCanBitrate applies the arbitration (and, if fd, data-phase)
	// bitrate/sample-point to a CAN interface. Not named in spec.md's L7
	// primitive list, but required by L6's DeviceInterface reconciliation
	// for CAN devices ("configure bitrate/sample-point/FD"); see DESIGN.md.
	ConfigureCanBitrate(iface string, bitrateHz, samplePointPermille uint32, fd bool, dataBitrateHz, dataSamplePointPermille uint32) error

	RemoveAllCanRoutes() error
	CreateCanRoute(src, dst string, canFD bool) error
	CheckCanRouteExists(src, dst string, canFD bool) (bool, error)
}

// Linux implements Manager via `ip` and `cangw`.
type Linux struct {
	// Run executes name with args and returns combined stdout+stderr.
	// Overridable in tests; defaults to exec.Command(name, args...).CombinedOutput().
	Run func(name string, args ...string) ([]byte, error)
}

// NewLinux constructs a Linux manager that shells out for real.
func NewLinux() *Linux {
	return &Linux{Run: runCommand}
}

func runCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

func (l *Linux) run(name string, args ...string) ([]byte, error) {
	if l.Run != nil {
		return l.Run(name, args...)
	}
	return runCommand(name, args...)
}

func (l *Linux) ListInterfaces() ([]string, error) {
	out, err := l.run("ip", "-o", "link", "show")
	if err != nil {
		return nil, wrapErr(ListInterfaces, "", fmt.Errorf("%w: %s", err, out))
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSuffix(fields[1], ":")
		name = strings.SplitN(name, "@", 2)[0]
		names = append(names, name)
	}
	return names, nil
}

func (l *Linux) TryFindInterface(name string) (Attributes, bool, error) {
	attrs, err := l.GetAttributes(name)
	if err != nil {
		if ne, ok := err.(*Error); ok && ne.Kind == InterfaceNotFound {
			return Attributes{}, false, nil
		}
		return Attributes{}, false, err
	}
	return attrs, true, nil
}

func (l *Linux) FindInterface(name string) (Attributes, error) {
	return l.GetAttributes(name)
}

func (l *Linux) GetAttributes(iface string) (Attributes, error) {
	out, err := l.run("ip", "-o", "link", "show", iface)
	if err != nil {
		return Attributes{}, wrapErr(InterfaceNotFound, iface, fmt.Errorf("%w: %s", err, out))
	}
	text := string(out)
	attrs := Attributes{Name: iface, Up: strings.Contains(text, "UP")}
	if idx := strings.Index(text, "mtu "); idx >= 0 {
		fmt.Sscanf(text[idx+4:], "%d", &attrs.MTU)
	}
	return attrs, nil
}

func (l *Linux) CreateEmptyBridge(name string) error {
	if _, ok, _ := l.TryFindInterface(name); ok {
		return nil
	}
	if out, err := l.run("ip", "link", "add", "name", name, "type", "bridge"); err != nil {
		return wrapErr(BridgeCreation, name, fmt.Errorf("%w: %s", err, out))
	}
	return l.SetInterfaceUp(name)
}

func (l *Linux) CreateGretapV4Interface(name string, local, remote net.IP) error {
	if _, ok, _ := l.TryFindInterface(name); ok {
		return nil
	}
	out, err := l.run("ip", "link", "add", name, "type", "gretap",
		"local", local.String(), "remote", remote.String())
	if err != nil {
		return wrapErr(GretapCreation, name, fmt.Errorf("%w: %s", err, out))
	}
	return l.SetInterfaceUp(name)
}

func (l *Linux) CreateVCanInterface(name string) error {
	if _, ok, _ := l.TryFindInterface(name); ok {
		return nil
	}
	if out, err := l.run("ip", "link", "add", "dev", name, "type", "vcan"); err != nil {
		return wrapErr(VCanInterfaceCreation, name, fmt.Errorf("%w: %s", err, out))
	}
	return l.SetInterfaceUp(name)
}

func (l *Linux) SetInterfaceUp(iface string) error {
	if out, err := l.run("ip", "link", "set", "up", "dev", iface); err != nil {
		return wrapErr(SetInterfaceUp, iface, fmt.Errorf("%w: %s", err, out))
	}
	return nil
}

func (l *Linux) JoinInterfaceToBridge(iface, bridge string) error {
	if out, err := l.run("ip", "link", "set", "dev", iface, "master", bridge); err != nil {
		return wrapErr(JoinInterfaceToBridge, iface, fmt.Errorf("%w: %s", err, out))
	}
	return nil
}

func (l *Linux) DetachInterfaceFromBridge(iface string) error {
	if out, err := l.run("ip", "link", "set", "dev", iface, "nomaster"); err != nil {
		return wrapErr(JoinInterfaceToBridge, iface, fmt.Errorf("%w: %s", err, out))
	}
	return nil
}

// ConfigureCanBitrate brings the interface down, applies bittiming via `ip
// link set type can`, and brings it back up. FD data-phase parameters are
// only passed when fd is set.
func (l *Linux) ConfigureCanBitrate(iface string, bitrateHz, samplePointPermille uint32, fd bool, dataBitrateHz, dataSamplePointPermille uint32) error {
	if out, err := l.run("ip", "link", "set", "down", iface); err != nil {
		return wrapErr(SetInterfaceUp, iface, fmt.Errorf("%w: %s", err, out))
	}
	args := []string{"link", "set", iface, "type", "can",
		"bitrate", fmt.Sprintf("%d", bitrateHz),
		"sample-point", fmt.Sprintf("0.%03d", samplePointPermille),
	}
	if fd {
		args = append(args, "fd", "on",
			"dbitrate", fmt.Sprintf("%d", dataBitrateHz),
			"dsample-point", fmt.Sprintf("0.%03d", dataSamplePointPermille))
	}
	if out, err := l.run("ip", args...); err != nil {
		return wrapErr(VCanInterfaceCreation, iface, fmt.Errorf("%w: %s", err, out))
	}
	return l.SetInterfaceUp(iface)
}

func (l *Linux) DeleteInterface(iface string) error {
	if _, ok, _ := l.TryFindInterface(iface); !ok {
		return nil
	}
	if out, err := l.run("ip", "link", "delete", iface); err != nil {
		return wrapErr(DeleteInterface, iface, fmt.Errorf("%w: %s", err, out))
	}
	return nil
}

func (l *Linux) RemoveAllCanRoutes() error {
	if out, err := l.run("cangw", "-F"); err != nil {
		return wrapErr(CanRouteFlushing, "", fmt.Errorf("%w: %s", err, out))
	}
	return nil
}

func (l *Linux) CreateCanRoute(src, dst string, canFD bool) error {
	args := []string{"-A", "-s", src, "-d", dst, "-e"}
	if canFD {
		args = append(args, "-X")
	}
	if out, err := l.run("cangw", args...); err != nil {
		return wrapErr(CanRouteCreation, fmt.Sprintf("%s->%s", src, dst), fmt.Errorf("%w: %s", err, out))
	}
	exists, err := l.CheckCanRouteExists(src, dst, canFD)
	if err != nil {
		return err
	}
	if !exists {
		return wrapErr(CanRouteCreationNoCause, fmt.Sprintf("%s->%s", src, dst), fmt.Errorf("route not present after creation"))
	}
	return nil
}

func (l *Linux) CheckCanRouteExists(src, dst string, canFD bool) (bool, error) {
	out, err := l.run("cangw", "-L")
	if err != nil {
		return false, wrapErr(ListCanRoutes, "", fmt.Errorf("%w: %s", err, out))
	}
	needle := fmt.Sprintf("-s %s -d %s", src, dst)
	return strings.Contains(string(out), needle), nil
}
