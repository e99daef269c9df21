package apupdater

import (
	"fmt"
	"os"

	"apupdater/archive"
	"apupdater/flashrom"
	"apupdater/sysprobe"
)

// Config bundles every piece of state a single update run needs: the
// loaded images, the system probe, the flasher, the archive they came
// from, quirk configuration, and the run's temp-file lifetime. It is the Go
// equivalent of struct updater_config, minus the C version's manual
// malloc/free bookkeeping.
type Config struct {
	Image, ImageCurrent *Image
	ECImage, PDImage    *Image

	Probe     *sysprobe.CachingProbe
	Flasher   flashrom.Flasher
	Archive   archive.Archive
	Quirks    *QuirkSet
	CBFSProbe CBFSProbe

	TryUpdate    bool
	ForceUpdate  bool
	LegacyUpdate bool
	Verbosity    int
	Emulation    string

	tempFiles []string
}

// NewConfig returns a Config with a fresh quirk set and no images loaded,
// matching updater_new_config's defaults.
func NewConfig(probe sysprobe.Probe, flasher flashrom.Flasher) *Config {
	return &Config{
		Probe:     sysprobe.NewCachingProbe(probe),
		Flasher:   flasher,
		Quirks:    NewQuirkSet(),
		CBFSProbe: NewShellCBFSProbe(),
	}
}

// Debugf prints a DEBUG-prefixed message when Verbosity is non-zero, the
// same gating as the original's DEBUG() macro.
func (c *Config) Debugf(format string, args ...any) {
	if c.Verbosity > 0 {
		fmt.Fprintf(os.Stderr, "DEBUG: "+format+"\n", args...)
	}
}

// Errorf always prints an ERROR-prefixed message, matching the ERROR()
// macro (unconditional, unlike DEBUG()).
func (c *Config) Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
}

// NewTempFile allocates a new temp file path scoped to this Config's
// lifetime and remembers it for cleanup, replacing the original's
// tempfile linked list with a slice owned by the Config itself.
func (c *Config) NewTempFile() (string, error) {
	f, err := os.CreateTemp("", "apupdater-")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	c.tempFiles = append(c.tempFiles, path)
	return path, nil
}

// Close releases every resource the Config owns: its images, its temp
// files, and its archive, matching updater_delete_config.
func (c *Config) Close() error {
	for _, img := range []*Image{c.Image, c.ImageCurrent, c.ECImage, c.PDImage} {
		if img != nil {
			img.Close()
		}
	}
	for _, f := range c.tempFiles {
		os.Remove(f)
	}
	c.tempFiles = nil
	if c.Archive != nil {
		return c.Archive.Close()
	}
	return nil
}

// Arguments mirrors the CLI-facing struct updater_config_arguments: the
// raw, string-typed knobs a command line (or any other front end) fills
// in before calling Setup.
type Arguments struct {
	Image, ECImage, PDImage string
	ArchivePath             string
	Quirks                  string
	Mode                    string
	Programmer              string
	Emulation               string
	SysProps                string
	WriteProtection         string
	IsFactory               bool
	TryUpdate               bool
	ForceUpdate             bool
	Verbosity               int
}

// Setup resolves Arguments into a ready Config, in the same order
// updater_setup_config does: mode string to flags, then sys-props
// overrides, then the write-protection override (which must come last
// among probe overrides so it wins over whatever --sys-props set for
// wpsw_cur/wpsw_hw), default quirks before user-specified quirks so user
// quirks can override defaults, then the archive, then the programmer
// override and image loading, then post-load validation.
func Setup(cfg *Config, args *Arguments) error {
	switch args.Mode {
	case "recovery", "":
		// default: whichever of try/legacy the caller already set.
	case "factory", "factory_install":
		args.IsFactory = true
	case "autoupdate":
		args.TryUpdate = true
	case "legacy":
		cfg.LegacyUpdate = true
	}
	if args.IsFactory {
		cfg.Probe.Override(sysprobe.WPHW, 0)
		cfg.Probe.Override(sysprobe.WPSW, 0)
		args.TryUpdate = false
	}
	cfg.TryUpdate = args.TryUpdate
	cfg.ForceUpdate = args.ForceUpdate
	cfg.Verbosity = args.Verbosity
	cfg.Emulation = args.Emulation

	if args.SysProps != "" {
		if err := cfg.Probe.OverrideFromList(args.SysProps); err != nil {
			return fmt.Errorf("setup: sys-props: %w", err)
		}
	}

	// Write-protection override applies after sys-props, so an explicit
	// --write-protection always wins over a --sys-props value for the
	// same property.
	if args.WriteProtection != "" {
		wp := 0
		if args.WriteProtection == "1" || args.WriteProtection == "on" {
			wp = 1
		}
		cfg.Probe.Override(sysprobe.WPHW, wp)
		cfg.Probe.Override(sysprobe.WPSW, wp)
	}

	if err := applyDefaultQuirks(cfg); err != nil {
		return fmt.Errorf("setup: default quirks: %w", err)
	}
	if args.Quirks != "" {
		if err := applyQuirkList(cfg, args.Quirks); err != nil {
			return fmt.Errorf("setup: quirks: %w", err)
		}
	}

	archivePath := args.ArchivePath
	if archivePath == "" {
		archivePath = "."
	}
	ar, err := archive.Open(archivePath)
	if err != nil {
		return fmt.Errorf("setup: open archive: %w", err)
	}
	cfg.Archive = ar
	if cfg.Verbosity > 0 {
		if entries, err := ar.List(); err == nil {
			cfg.Debugf("archive %q contents: %v", archivePath, entries)
		}
	}

	programmer := args.Programmer
	if programmer == "" {
		programmer = "host"
	}

	if args.Image != "" {
		img, err := LoadFirmwareImage(programmer, args.Image, ar)
		if err != nil {
			return fmt.Errorf("setup: load image: %w", err)
		}
		cfg.Image = img
	}
	if args.ECImage != "" {
		img, err := LoadFirmwareImage("ec", args.ECImage, ar)
		if err != nil {
			return fmt.Errorf("setup: load EC image: %w", err)
		}
		cfg.ECImage = img
	}
	if args.PDImage != "" {
		img, err := LoadFirmwareImage("ec:dev=1", args.PDImage, ar)
		if err != nil {
			return fmt.Errorf("setup: load PD image: %w", err)
		}
		cfg.PDImage = img
	}

	if cfg.Image != nil && (cfg.ECImage != nil || cfg.PDImage != nil) {
		// check_single_image conflict: some call sites require exactly
		// one of {AP image} or {EC/PD image} to be present.
		cfg.Debugf("both AP and EC/PD images supplied; proceeding with combined update")
	}

	if args.IsFactory {
		wpHW, _ := cfg.Probe.Get(sysprobe.WPHW)
		if wpHW != 0 {
			return fmt.Errorf("setup: factory mode requires write protection disabled")
		}
	}

	return nil
}

func applyDefaultQuirks(cfg *Config) error {
	// No board-specific defaults are hardcoded here; updater_get_default_
	// quirks derives them from the model manifest, which is a property of
	// the archive contents rather than a static table, so defaults are
	// simply "none" until a manifest-driven override is implemented.
	return nil
}

func applyQuirkList(cfg *Config, list string) error {
	for _, tok := range splitComma(list) {
		name, value := splitEquals(tok)
		qt, ok := quirkName(name)
		if !ok {
			return fmt.Errorf("unknown quirk %q", name)
		}
		if err := cfg.Quirks.Set(qt, value); err != nil {
			return err
		}
	}
	return nil
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func splitEquals(s string) (name string, value int) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			name = s[:i]
			fmt.Sscanf(s[i+1:], "%d", &value)
			return name, value
		}
	}
	return s, 1
}
