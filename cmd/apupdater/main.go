package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"

	apupdater "apupdater"
	"apupdater/bdb"
	"apupdater/flashrom"
	"apupdater/gbbutil"
	"apupdater/sysprobe"
)

func usage() {
	fmt.Fprintf(os.Stderr, `apupdater - AP firmware update decision engine

Usage: %s <action> [args...]

Supported actions:
  update [-i image] [-e ec_image] [-p pd_image] [--programmer p]
         [--mode mode] [--quirks list] [--sys-props list]
         [--write-protection 0|1] [--force] [--emulate file]
    Run the update decision engine: load the candidate (and, optionally,
    EC/PD) image, probe the running system, pick a strategy, and write
    through flashrom.

  quirks
    List every known quirk, its help text, and its current value.

  gbb get <file>
    Print HWID, flags, and root/recovery key sizes from a GBB blob.

  gbb set-hwid <file> <hwid>
    Rewrite the HWID field of a GBB blob in place.

  gbb create <hwidsize> <rootkeysize> <bmpfvsize> <recoverykeysize> <outfile>
    Create a zero-filled GBB blob with the given field sizes.

  bdb <file>
    Pretty-print a Boot Descriptor Block.

  hexpatch <file> <hexpattern1> <hexpattern2>
    Search <hexpattern1> in <file>, and replace it with <hexpattern2>.
`, os.Args[0])
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	action := strings.TrimLeft(os.Args[1], "-")
	args := os.Args[2:]

	switch {
	case action == "update":
		os.Exit(runUpdate(args))
	case action == "quirks":
		runQuirks()
	case action == "gbb" && len(args) > 0:
		runGBB(args)
	case action == "bdb" && len(args) > 0:
		runBDB(args[0])
	case action == "hexpatch" && len(args) >= 3:
		os.Exit(runHexPatch(args[0], args[1], args[2]))
	default:
		usage()
	}
}

func flagValue(args []string, name string) (string, bool) {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func runUpdate(args []string) int {
	image, _ := flagValue(args, "-i")
	ecImage, _ := flagValue(args, "-e")
	pdImage, _ := flagValue(args, "-p")
	programmer, _ := flagValue(args, "--programmer")
	mode, _ := flagValue(args, "--mode")
	quirks, _ := flagValue(args, "--quirks")
	sysProps, _ := flagValue(args, "--sys-props")
	wp, _ := flagValue(args, "--write-protection")
	emulate, _ := flagValue(args, "--emulate")
	archivePath, _ := flagValue(args, "--archive")
	force := hasFlag(args, "--force")
	tryUpdate := hasFlag(args, "--try")
	verbose := hasFlag(args, "-v")

	if image == "" {
		fmt.Fprintln(os.Stderr, "apupdater: update requires -i <image>")
		return int(apupdater.ErrNoImage)
	}

	verbosity := 0
	if verbose {
		verbosity = 1
	}

	probe := sysprobe.NewHostProbe()
	flasher := flashrom.NewHost(verbose)
	cfg := apupdater.NewConfig(probe, flasher)
	defer cfg.Close()

	cliArgs := &apupdater.Arguments{
		Image:           image,
		ECImage:         ecImage,
		PDImage:         pdImage,
		ArchivePath:     archivePath,
		Quirks:          quirks,
		Mode:            mode,
		Programmer:      programmer,
		Emulation:       emulate,
		SysProps:        sysProps,
		WriteProtection: wp,
		TryUpdate:       tryUpdate,
		ForceUpdate:     force,
		Verbosity:       verbosity,
	}
	if err := apupdater.Setup(cfg, cliArgs); err != nil {
		fmt.Fprintf(os.Stderr, "apupdater: setup failed: %v\n", err)
		return int(apupdater.ErrInvalidImage)
	}

	code := apupdater.UpdateFirmware(cfg)
	fmt.Println(code.String())
	return int(code)
}

func runQuirks() {
	for _, q := range apupdater.NewQuirkSet().List() {
		fmt.Printf("%-24s %s (value=%d)\n", q.Name, q.Help, q.Value)
	}
}

func runGBB(args []string) {
	if len(args) < 2 {
		usage()
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "get":
		data, err := os.ReadFile(rest[0])
		if err != nil {
			log.Fatalln(err)
		}
		g, err := gbbutil.Find(data)
		if err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("hwid:            %s\n", g.HWID())
		fmt.Printf("flags:           0x%08x\n", g.Flags())
		fmt.Printf("rootkey size:    %d\n", len(g.RootKey()))
		fmt.Printf("recoverykey size: %d\n", len(g.RecoveryKey()))
	case "set-hwid":
		if len(rest) < 2 {
			usage()
		}
		data, err := os.ReadFile(rest[0])
		if err != nil {
			log.Fatalln(err)
		}
		g, err := gbbutil.Find(data)
		if err != nil {
			log.Fatalln(err)
		}
		if err := g.SetHWID(rest[1]); err != nil {
			log.Fatalln(err)
		}
		if err := os.WriteFile(rest[0], data, 0o644); err != nil {
			log.Fatalln(err)
		}
	case "create":
		if len(rest) < 5 {
			usage()
		}
		sizes := make([]uint32, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseUint(rest[i], 10, 32)
			if err != nil {
				log.Fatalln(err)
			}
			sizes[i] = uint32(v)
		}
		buf := gbbutil.Create(sizes[0], sizes[1], sizes[2], sizes[3])
		if err := os.WriteFile(rest[4], buf, 0o644); err != nil {
			log.Fatalln(err)
		}
	default:
		usage()
	}
}

func runBDB(file string) {
	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatalln(err)
	}
	b, err := bdb.Parse(data)
	if err != nil {
		log.Fatalln(err)
	}
	b.Print(os.Stdout, file)
}

// runHexPatch searches for hexpattern1 in file and replaces it with
// hexpattern2 in place, adapted from the boot-image tool's HexPatch to
// operate on a flash dump instead of a boot image, still mmapping the
// file RDWR the same way.
func runHexPatch(file, from, to string) int {
	fd, err := os.OpenFile(file, os.O_RDWR, 0o644)
	if err != nil {
		log.Fatalln(err)
	}
	defer fd.Close()
	fstat, err := fd.Stat()
	if err != nil {
		log.Fatalln(err)
	}
	fsize := fstat.Size()

	fromB, err := hex.DecodeString(from)
	if err != nil {
		log.Fatalln(err)
	}
	toB, err := hex.DecodeString(to)
	if err != nil {
		log.Fatalln(err)
	}
	if len(fromB) == 0 || len(fromB) != len(toB) {
		fmt.Fprintln(os.Stderr, "apupdater: hexpatch patterns must be non-empty and equal length")
		return 1
	}

	m, err := mmap.Map(fd, mmap.RDWR, 0)
	if err != nil {
		log.Fatalln(err)
	}
	defer m.Unmap()

	patched := false
	for i := int64(0); i+int64(len(fromB)) <= fsize; i++ {
		if m[i] != fromB[0] {
			continue
		}
		match := true
		for j := 1; j < len(fromB); j++ {
			if m[i+int64(j)] != fromB[j] {
				match = false
				break
			}
		}
		if match {
			copy(m[i:], toB)
			fmt.Fprintf(os.Stderr, "Patch @ 0x%08X [%s] -> [%s]\n", i, from, to)
			patched = true
		}
	}
	if patched {
		return 0
	}
	return 1
}
