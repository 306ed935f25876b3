package cmd

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ngld/dlibbuild/pkg"
)

// expandArgs resolves glob patterns on Windows where the shell doesn't do it for us
func expandArgs(args []string, allowEmpty bool) ([]string, error) {
	if runtime.GOOS != "windows" {
		return args, nil
	}

	items := []string{}
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", arg)
		}

		if matches == nil {
			if allowEmpty {
				continue
			}
			return nil, eris.Errorf("Pattern %s produced no matches", arg)
		}

		items = append(items, matches...)
	}

	return items, nil
}

// destination validates the last argument of mv and cp
func destination(args []string) (string, bool, error) {
	dest := filepath.Clean(args[len(args)-1])
	destParent := filepath.Dir(dest)
	info, err := os.Stat(destParent)
	if err != nil {
		return "", false, eris.Wrapf(err, "Could not find destination directory %s", destParent)
	}

	if !info.IsDir() {
		return "", false, eris.Errorf("%s is not a directory!", destParent)
	}

	info, err = os.Stat(dest)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return "", false, eris.Wrapf(err, "Failed to retrieve info about destination %s", dest)
	}

	isDir := err == nil && info.IsDir()
	if len(args) > 2 && !isDir {
		return "", false, eris.Errorf("Can't use multiple items with %s because it is not a directory!", dest)
	}

	return dest, isDir, nil
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv",
		Short: "Cross-platform implementation of the POSIX mv command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return eris.New("Not enough parameters")
			}

			dest, isDir, err := destination(args)
			if err != nil {
				return err
			}

			items, err := expandArgs(args[:len(args)-1], false)
			if err != nil {
				return err
			}

			for _, item := range items {
				itemDest := dest
				if isDir {
					itemDest = filepath.Join(dest, filepath.Base(item))
				}

				err = os.Rename(item, itemDest)
				if err != nil {
					return eris.Wrapf(err, "Failed to move %s to %s", item, itemDest)
				}
			}

			return nil
		},
	}
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp",
		Short: "Cross-platform implementation of the POSIX cp command (files only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return eris.New("Not enough parameters")
			}

			dest, isDir, err := destination(args)
			if err != nil {
				return err
			}

			items, err := expandArgs(args[:len(args)-1], false)
			if err != nil {
				return err
			}

			for _, item := range items {
				if isDir {
					err = pkg.CopyInto(item, dest)
				} else {
					err = pkg.CopyFile(item, dest)
				}
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	rmCmd := &cobra.Command{
		Use:   "rm",
		Short: "A cross-platform implementation of the POSIX rm command",
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, err := cmd.Flags().GetBool("recursive")
			if err != nil {
				return err
			}

			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}

			items, err := expandArgs(args, force)
			if err != nil {
				return err
			}

			remaining := make([]string, 0, len(items))
			for _, item := range items {
				info, err := os.Stat(item)
				if err != nil {
					if force && eris.Is(err, os.ErrNotExist) {
						continue
					}
					return eris.Wrapf(err, "Could not stat %s", item)
				}

				if info.IsDir() && !recursive {
					return eris.Errorf("%s is a directory but -r wasn't passed", item)
				}
				remaining = append(remaining, item)
			}

			for _, item := range remaining {
				err := os.RemoveAll(item)
				if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
					return eris.Wrapf(err, "Could not delete %s", item)
				}
			}

			return nil
		},
	}

	rmCmd.Flags().BoolP("recursive", "r", false, "recursively delete directories")
	rmCmd.Flags().BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
	return rmCmd
}

func newMkdirCmd() *cobra.Command {
	mkdirCmd := &cobra.Command{
		Use:   "mkdir",
		Short: "A cross-platform implementation of the POSIX mkdir command",
		RunE: func(cmd *cobra.Command, args []string) error {
			makeParents, err := cmd.Flags().GetBool("parents")
			if err != nil {
				return err
			}

			for _, item := range args {
				if makeParents {
					err = os.MkdirAll(item, 0770)
				} else {
					err = os.Mkdir(item, 0770)
				}

				if err != nil {
					return eris.Wrapf(err, "Failed to create %s", item)
				}
			}

			return nil
		},
	}

	mkdirCmd.Flags().BoolP("parents", "p", false, "create parent directories as needed")
	return mkdirCmd
}

// newToolCmd bundles the helpers that shell actions call instead of the system's mv, rm, mkdir and cp
func newToolCmd() *cobra.Command {
	toolCmd := &cobra.Command{
		Use:    "tool",
		Short:  "Cross-platform file helpers used by task scripts",
		Hidden: true,
	}

	toolCmd.AddCommand(newMvCmd(), newCpCmd(), newRmCmd(), newMkdirCmd())
	return toolCmd
}
