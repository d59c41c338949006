// sdtool drives the microsd wrapper against an emulated card volume on
// the host. The medium is either a directory on the local filesystem
// (--dir) or throwaway memory, which makes it a convenient harness for
// exercising every card operation without hardware.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picofs/microsd"
	"github.com/picofs/microsd/fatfs"
	"github.com/picofs/microsd/fatfs/memcard"
	"github.com/picofs/microsd/hal"
)

var rootCmd = &cobra.Command{
	Use:           "sdtool",
	Short:         "Inspect and modify an emulated MicroSD card volume",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("dir", "", "host directory backing the card medium (default: in-memory)")
	pf.Int("size-mb", 64, "emulated card size in megabytes")
	viper.SetEnvPrefix("sdtool")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("dir", pf.Lookup("dir"))
	viper.BindPFlag("size-mb", pf.Lookup("size-mb"))

	rootCmd.AddCommand(
		lsCmd(), catCmd(), writeCmd(), cpCmd(), mvCmd(), rmCmd(),
		mkdirCmd(), rmdirCmd(), statCmd(), dfCmd(), formatCmd(),
	)
}

func openCard() (*microsd.Card, error) {
	var backing afero.Fs
	if dir := viper.GetString("dir"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		backing = afero.NewBasePathFs(afero.NewOsFs(), dir)
	} else {
		backing = afero.NewMemMapFs()
	}
	sizeMB := viper.GetInt("size-mb")
	if sizeMB <= 0 {
		return nil, fmt.Errorf("invalid card size %dMB", sizeMB)
	}
	dev, err := fatfs.NewMemBlockDevice(fatfs.SectorSize, sizeMB*1024*1024/fatfs.SectorSize)
	if err != nil {
		return nil, err
	}
	card := microsd.NewCard(microsd.DefaultSPIConfig(), &hal.Simulator{}, memcard.New(backing), dev)
	if st := card.Initialize(); st.IsError() {
		return nil, fmt.Errorf("initialize card: %s: %s", st.Code(), st.Message())
	}
	return card, nil
}

// run wraps a card operation into a cobra RunE.
func run(fn func(card *microsd.Card, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		card, err := openCard()
		if err != nil {
			return err
		}
		defer card.Close()
		return fn(card, args)
	}
}

func statusErr(st microsd.Status) error {
	if st.IsOK() {
		return nil
	}
	return fmt.Errorf("%s: %s", st.Code(), st.Message())
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory, directories first",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(card *microsd.Card, args []string) error {
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			res := card.ListDirectory(path)
			if res.IsError() {
				return fmt.Errorf("%s: %s", res.Code(), res.Message())
			}
			for _, f := range res.Value() {
				if f.IsDir {
					fmt.Printf("%10s  %s/\n", "<dir>", f.Name)
				} else {
					fmt.Printf("%10d  %s\n", f.Size, f.Name)
				}
			}
			return nil
		}),
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print file contents",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(card *microsd.Card, args []string) error {
			res := card.ReadFile(args[0])
			if res.IsError() {
				return fmt.Errorf("%s: %s", res.Code(), res.Message())
			}
			os.Stdout.Write(res.Value())
			return nil
		}),
	}
}

func writeCmd() *cobra.Command {
	var appendFlag bool
	cmd := &cobra.Command{
		Use:   "write <path> <text>...",
		Short: "Write text to a file",
		Args:  cobra.MinimumNArgs(2),
		RunE: run(func(card *microsd.Card, args []string) error {
			text := strings.Join(args[1:], " ") + "\n"
			return statusErr(card.WriteTextFile(args[0], text, appendFlag))
		}),
	}
	cmd.Flags().BoolVar(&appendFlag, "append", false, "append instead of truncating")
	return cmd
}

func cpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <src> <dst>",
		Short: "Copy a file",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(card *microsd.Card, args []string) error {
			return statusErr(card.CopyFile(args[0], args[1]))
		}),
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old> <new>",
		Short: "Rename a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(card *microsd.Card, args []string) error {
			return statusErr(card.Rename(args[0], args[1]))
		}),
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(card *microsd.Card, args []string) error {
			return statusErr(card.DeleteFile(args[0]))
		}),
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(card *microsd.Card, args []string) error {
			return statusErr(card.CreateDirectory(args[0]))
		}),
	}
}

func rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>",
		Short: "Remove an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(card *microsd.Card, args []string) error {
			return statusErr(card.RemoveDirectory(args[0]))
		}),
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show file information",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(card *microsd.Card, args []string) error {
			res := card.Stat(args[0])
			if res.IsError() {
				return fmt.Errorf("%s: %s", res.Code(), res.Message())
			}
			f := res.Value()
			fmt.Printf("name: %s\npath: %s\nsize: %d\ndir: %v\nattr: 0x%02x\n",
				f.Name, f.FullPath, f.Size, f.IsDir, f.Attributes)
			return nil
		}),
	}
}

func dfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "df",
		Short: "Show capacity and filesystem type",
		Args:  cobra.NoArgs,
		RunE: run(func(card *microsd.Card, args []string) error {
			res := card.Capacity()
			if res.IsError() {
				return fmt.Errorf("%s: %s", res.Code(), res.Message())
			}
			info := res.Value()
			fmt.Printf("filesystem: %s\ntotal: %d bytes\nfree:  %d bytes\n",
				card.FilesystemType(), info.TotalBytes, info.FreeBytes)
			return nil
		}),
	}
}

func formatCmd() *cobra.Command {
	var fsType string
	var yes bool
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Re-create the filesystem (destroys all data)",
		Args:  cobra.NoArgs,
		RunE: run(func(card *microsd.Card, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to format without --yes")
			}
			return statusErr(card.Format(fsType))
		}),
	}
	cmd.Flags().StringVar(&fsType, "type", "FAT32", "filesystem type: FAT32, FAT16 or exFAT")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive format")
	return cmd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sdtool:", err)
		os.Exit(1)
	}
}
