// Command upload is the host-side CLI for talking to the dual-bank
// bootloader over its USB CDC link (spec.md §5-§7).
//
// Grounded on mbrukner-FoenixMgrGo/cmd/root.go and cmd/upload.go for the
// cobra command tree shape (persistent --port flag, one subcommand per
// operation), and on original_source/crispy-upload/src/commands.rs for the
// upload/status/set-bank/wipe/bin2uf2 operations themselves.
package main

import (
	"fmt"
	"hash/crc32"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/hostserial"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/uf2"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/version"
	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/wire"
)

var portFlag string

var rootCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload and manage firmware on the dual-bank bootloader",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&portFlag, "port", "", "serial port (e.g. /dev/ttyACM0, COM3)")
	rootCmd.AddCommand(statusCmd, uploadCmd, setBankCmd, wipeCmd, rebootCmd, bin2uf2Cmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requirePort() (*hostserial.Port, error) {
	if portFlag == "" {
		return nil, fmt.Errorf("no --port specified")
	}
	return hostserial.Open(portFlag, hostserial.DefaultTimeout)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the device's current bank/version state",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := requirePort()
		if err != nil {
			return err
		}
		defer p.Close()

		resp, err := p.Exchange(&wire.Command{Tag: wire.TagGetStatus})
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if resp.Tag != wire.TagStatus {
			return fmt.Errorf("status: unexpected response tag %v", resp.Tag)
		}
		fmt.Printf("Active bank:   %d\n", resp.ActiveBank)
		fmt.Printf("State:         %s\n", resp.State)
		fmt.Printf("Bank A version: %s\n", formatSemver(resp.VersionA))
		fmt.Printf("Bank B version: %s\n", formatSemver(resp.VersionB))
		if resp.HasBootloaderVer {
			fmt.Printf("Bootloader:    %s\n", formatSemver(resp.BootloaderVersion))
		}
		return nil
	},
}

var (
	uploadBank    string
	uploadVersion string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file.bin>",
	Short: "Upload a firmware image to the inactive bank",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(args[0])
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadBank, "bank", "", "target bank, 'a' or 'b' (default: inactive bank)")
	uploadCmd.Flags().StringVar(&uploadVersion, "version", "0.0.0", "major.minor.patch reported to the device")
}

func runUpload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	// Must match the device's CRC-32/ISO-HDLC (internal/flash's crc32.IEEE),
	// not zappem.net/pub/debug/xcrc32's libiberty/gdb-remote variant.
	hostCRC := crc32.ChecksumIEEE(data)

	packedVersion, err := version.PackSemver(uploadVersion)
	if err != nil {
		return fmt.Errorf("--version: %w", err)
	}

	p, err := requirePort()
	if err != nil {
		return err
	}
	defer p.Close()

	var bank uint8
	switch uploadBank {
	case "a":
		bank = 0
	case "b":
		bank = 1
	case "":
		statusResp, err := p.Exchange(&wire.Command{Tag: wire.TagGetStatus})
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		bank = 1 - statusResp.ActiveBank
	default:
		return fmt.Errorf("--bank must be 'a' or 'b', got %q", uploadBank)
	}

	if err := p.SetTimeout(hostserial.StartUpdateTimeout); err != nil {
		return err
	}
	startResp, err := p.Exchange(&wire.Command{
		Tag:     wire.TagStartUpdate,
		Bank:    bank,
		Size:    uint32(len(data)),
		Crc32:   hostCRC,
		Version: packedVersion,
	})
	if err != nil {
		return fmt.Errorf("start update: %w", err)
	}
	if startResp.Status != wire.Ok {
		return fmt.Errorf("start update rejected: %s", startResp.Status)
	}
	if err := p.SetTimeout(hostserial.DefaultTimeout); err != nil {
		return err
	}

	bar := progressbar.DefaultBytes(int64(len(data)), fmt.Sprintf("bank %d", bank))
	for offset := 0; offset < len(data); offset += wire.MaxDataBlockSize {
		end := offset + wire.MaxDataBlockSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		resp, err := p.Exchange(&wire.Command{
			Tag:    wire.TagDataBlock,
			Offset: uint32(offset),
			Data:   chunk,
		})
		if err != nil {
			return fmt.Errorf("data block at %d: %w", offset, err)
		}
		if resp.Status != wire.Ok {
			return fmt.Errorf("data block at %d rejected: %s", offset, resp.Status)
		}
		bar.Add(len(chunk))
	}
	bar.Finish()

	if err := p.SetTimeout(hostserial.StartUpdateTimeout); err != nil {
		return err
	}
	finishResp, err := p.Exchange(&wire.Command{Tag: wire.TagFinishUpdate})
	if err != nil {
		return fmt.Errorf("finish update: %w", err)
	}
	if finishResp.Status != wire.Ok {
		return fmt.Errorf("finish update rejected: %s", finishResp.Status)
	}
	fmt.Println("Upload complete and verified.")
	return nil
}

var setBankCmd = &cobra.Command{
	Use:   "set-bank <a|b>",
	Short: "Record a bank as the active bank in boot metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var bank uint8
		switch args[0] {
		case "a":
			bank = 0
		case "b":
			bank = 1
		default:
			return fmt.Errorf("bank must be 'a' or 'b', got %q", args[0])
		}
		if !confirm(fmt.Sprintf("Set bank %q active?", args[0])) {
			fmt.Println("Aborted.")
			return nil
		}
		p, err := requirePort()
		if err != nil {
			return err
		}
		defer p.Close()
		resp, err := p.Exchange(&wire.Command{Tag: wire.TagSetActiveBank, Bank: bank})
		if err != nil {
			return fmt.Errorf("set-bank: %w", err)
		}
		if resp.Status != wire.Ok {
			return fmt.Errorf("set-bank rejected: %s", resp.Status)
		}
		fmt.Println("Active bank updated.")
		return nil
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Erase boot metadata and return to a factory-fresh state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm("This will erase boot metadata for both banks. Continue?") {
			fmt.Println("Aborted.")
			return nil
		}
		p, err := requirePort()
		if err != nil {
			return err
		}
		defer p.Close()
		resp, err := p.Exchange(&wire.Command{Tag: wire.TagWipeAll})
		if err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
		if resp.Status != wire.Ok {
			return fmt.Errorf("wipe rejected: %s", resp.Status)
		}
		fmt.Println("Boot metadata wiped.")
		return nil
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Ask the device to reboot",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := requirePort()
		if err != nil {
			return err
		}
		defer p.Close()
		_, _ = p.Exchange(&wire.Command{Tag: wire.TagReboot})
		fmt.Println("Reboot requested.")
		return nil
	},
}

var (
	bin2uf2Base     string
	bin2uf2FamilyID string
)

var bin2uf2Cmd = &cobra.Command{
	Use:   "bin2uf2 <in.bin> <out.uf2>",
	Short: "Wrap a raw firmware binary in a UF2 container",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		base, err := parseHexOrDec(bin2uf2Base)
		if err != nil {
			return fmt.Errorf("--base-address: %w", err)
		}
		family, err := parseHexOrDec(bin2uf2FamilyID)
		if err != nil {
			return fmt.Errorf("--family-id: %w", err)
		}
		out := uf2.Encode(data, base, family)
		if err := os.WriteFile(args[1], out, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		fmt.Printf("UF2: %s (%d blocks, %d bytes)\n", args[1], len(out)/uf2.BlockSize, len(data))
		return nil
	},
}

func init() {
	bin2uf2Cmd.Flags().StringVar(&bin2uf2Base, "base-address", "0x10000000", "target flash address for block 0")
	bin2uf2Cmd.Flags().StringVar(&bin2uf2FamilyID, "family-id", "0xe48bff56", "UF2 family ID")
}

func parseHexOrDec(s string) (uint32, error) {
	var v uint32
	_, err := fmt.Sscanf(s, "0x%x", &v)
	if err == nil {
		return v, nil
	}
	_, err = fmt.Sscanf(s, "%d", &v)
	return v, err
}

func formatSemver(v uint32) string {
	major, minor, patch := version.UnpackSemver(v)
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}
