// Package sysprobe implements the updater's System probe collaborator:
// lazily-cached queries of the running system's active firmware slot, TPM
// anti-rollback record, vboot generation, and write-protect status, plus
// the setters used to arm a try-boot. The real implementation shells out
// to crossystem/mosys, the way host_get_mainfw_act and its siblings do;
// its shell runner is a field that tests replace with a fake.
package sysprobe

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"apupdater/flashrom"
)

// Property identifies one queryable system property.
type Property int

const (
	MainFWAct Property = iota
	TPMFwVer
	FWVboot2
	PlatformVersion
	WPHW
	WPSW
	numProperties
)

var propertyNames = [numProperties]string{
	MainFWAct:       "mainfw_act",
	TPMFwVer:        "tpm_fwver",
	FWVboot2:        "fw_vboot2",
	PlatformVersion: "platform_ver",
	WPHW:            "wpsw_hw",
	WPSW:            "wpsw_cur",
}

func (p Property) String() string {
	if p < 0 || p >= numProperties {
		return fmt.Sprintf("property(%d)", int(p))
	}
	return propertyNames[p]
}

// Properties returns every known property, in enum order, for diagnostic
// scans over the whole set.
func Properties() []Property {
	out := make([]Property, numProperties)
	for i := range out {
		out[i] = Property(i)
	}
	return out
}

// Probe is the system collaborator the updater queries for the active
// firmware slot, rollback record, and write-protect status, and directs to
// arm the next boot's try-slot.
type Probe interface {
	Get(p Property) (int, error)
	SetFWTryNext(slot string) error
	SetFWTryCount(n int) error
	SetFWBTries(n int) error
}

// CachingProbe wraps a Probe with the lazy memoization host_get_* relies
// on via get_system_property: once a property has been read successfully
// (or overridden), its value is cached and never queried again. A failed
// read is not cached, so the next Get queries it again.
type CachingProbe struct {
	inner  Probe
	cache  map[Property]int
	cached map[Property]bool
}

// NewCachingProbe wraps inner with a property cache.
func NewCachingProbe(inner Probe) *CachingProbe {
	return &CachingProbe{inner: inner, cache: map[Property]int{}, cached: map[Property]bool{}}
}

func (c *CachingProbe) Get(p Property) (int, error) {
	if c.cached[p] {
		return c.cache[p], nil
	}
	v, err := c.inner.Get(p)
	if err != nil {
		return 0, err
	}
	c.cache[p] = v
	c.cached[p] = true
	return v, nil
}

// Override pre-seeds the cache for p, the way override_system_property and
// override_properties_from_list let a test or emulation run pin values
// without touching real hardware.
func (c *CachingProbe) Override(p Property, v int) {
	c.cache[p] = v
	c.cached[p] = true
}

// OverrideFromList parses a comma-separated "name=value" list (e.g.
// "wpsw_cur=0,mainfw_act=1") the way override_properties_from_list does,
// and overrides each named property.
func (c *CachingProbe) OverrideFromList(list string) error {
	if list == "" {
		return nil
	}
	names := map[string]Property{
		"mainfw_act":   MainFWAct,
		"tpm_fwver":    TPMFwVer,
		"fw_vboot2":    FWVboot2,
		"platform_ver": PlatformVersion,
		"wpsw_hw":      WPHW,
		"wpsw_cur":     WPSW,
	}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("sysprobe: invalid override %q", entry)
		}
		p, ok := names[kv[0]]
		if !ok {
			return fmt.Errorf("sysprobe: unknown property %q", kv[0])
		}
		v, err := strconv.Atoi(kv[1])
		if err != nil {
			return fmt.Errorf("sysprobe: invalid value in %q: %w", entry, err)
		}
		c.Override(p, v)
	}
	return nil
}

func (c *CachingProbe) SetFWTryNext(slot string) error { return c.inner.SetFWTryNext(slot) }
func (c *CachingProbe) SetFWTryCount(n int) error      { return c.inner.SetFWTryCount(n) }
func (c *CachingProbe) SetFWBTries(n int) error        { return c.inner.SetFWBTries(n) }

// HostProbe queries the live system via crossystem/mosys, matching
// host_get_mainfw_act/host_get_tpm_fwver/host_get_fw_vboot2/
// host_get_wp_hw/host_get_wp_sw/host_get_platform_version.
type HostProbe struct {
	// Shell runs a command and returns its stripped stdout, the same
	// contract as host_shell. Exposed as a field so tests can replace it
	// without exec'ing real binaries.
	Shell func(name string, args ...string) (string, error)
}

// NewHostProbe returns a HostProbe that shells out with os/exec.
func NewHostProbe() *HostProbe {
	return &HostProbe{Shell: runShell}
}

func runShell(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", nil // host_shell: a failing command yields "", not an error
	}
	return strings.TrimSpace(string(out)), nil
}

func (h *HostProbe) Get(p Property) (int, error) {
	switch p {
	case MainFWAct:
		out, _ := h.Shell("crossystem", "mainfw_act")
		switch out {
		case "A":
			return 0, nil
		case "B":
			return 1, nil
		default:
			return -1, nil
		}
	case TPMFwVer:
		out, _ := h.Shell("crossystem", "tpm_fwver")
		return parseHexOrDec(out)
	case FWVboot2:
		out, _ := h.Shell("crossystem", "fw_vboot2")
		return parseHexOrDec(out)
	case PlatformVersion:
		out, _ := h.Shell("mosys", "platform", "version")
		return parsePlatformVersion(out)
	case WPHW:
		out, _ := h.Shell("flashrom", "-p", "host", "--wp-status")
		return parseWPStatus(out)
	case WPSW:
		out, _ := h.Shell("crossystem", "wpsw_cur")
		v, err := parseHexOrDec(out)
		if err != nil || out == "" {
			// Fall back to wpsw_boot, the way host_get_wp_sw does when
			// wpsw_cur is unavailable on this board.
			out, _ = h.Shell("crossystem", "wpsw_boot")
			return parseHexOrDec(out)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("sysprobe: unknown property %d", p)
	}
}

func parseHexOrDec(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("sysprobe: empty value")
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// parsePlatformVersion extracts the integer suffix from a "revN" token the
// way host_get_platform_version scans mosys's "platform version" output.
func parsePlatformVersion(out string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		tok := scanner.Text()
		if strings.HasPrefix(tok, "rev") {
			return strconv.Atoi(strings.TrimPrefix(tok, "rev"))
		}
	}
	return 0, fmt.Errorf("sysprobe: no platform version token in %q", out)
}

// parseWPStatus scans flashrom's human-readable WP status the same way
// host_get_wp_hw does, via the same substring match flashrom.IsWPEnabled
// uses for the Flasher's own WPStatus output.
func parseWPStatus(out string) (int, error) {
	enabled, known := flashrom.IsWPEnabled(out)
	if !known {
		return -1, fmt.Errorf("sysprobe: unrecognized wp-status output")
	}
	if enabled {
		return 1, nil
	}
	return 0, nil
}

func (h *HostProbe) SetFWTryNext(slot string) error {
	_, err := h.Shell("crossystem", "fw_try_next="+slot)
	return err
}

func (h *HostProbe) SetFWTryCount(n int) error {
	_, err := h.Shell("crossystem", fmt.Sprintf("fw_try_count=%d", n))
	return err
}

func (h *HostProbe) SetFWBTries(n int) error {
	_, err := h.Shell("crossystem", fmt.Sprintf("fwb_tries=%d", n))
	return err
}
