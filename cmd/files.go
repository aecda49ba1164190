package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/cipherroom/internal/secrets"
	"github.com/PolarWolf314/cipherroom/internal/ui"
	"github.com/PolarWolf314/cipherroom/internal/utils"
	"github.com/PolarWolf314/cipherroom/internal/workflows"

	"github.com/spf13/cobra"
)

var (
	uploadMIME     string
	downloadOutput string
	downloadForce  bool

	// FilesCmd manages a group's encrypted file vault.
	FilesCmd = &cobra.Command{
		Use:   "files",
		Short: "Share encrypted files with a group",
		Long: `Files are encrypted with the group key before upload. The relay stores
the ciphertext and a small metadata record; downloads are verified against
the sender's integrity digest before they are written.

Examples:
  cipherroom files upload design ./mockup.png
  cipherroom files list design
  cipherroom files download 3f2a... --output ./mockup.png`,
	}
)

func init() {
	filesUploadCmd.Flags().StringVar(&uploadMIME, "mime", "", "MIME type (detected from the content when omitted)")
	filesDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "where to write the file (defaults to its name in the current directory)")
	filesDownloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "overwrite an existing file")

	FilesCmd.AddCommand(filesUploadCmd)
	FilesCmd.AddCommand(filesDownloadCmd)
	FilesCmd.AddCommand(filesDeleteCmd)
	FilesCmd.AddCommand(filesListCmd)
}

func resetFilesCommandState() {
	uploadMIME = ""
	downloadOutput = ""
	downloadForce = false
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <group> <path>",
	Short: "Encrypt and upload a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[1]
		info, err := os.Stat(path)
		if err != nil {
			return Logger.ErrorfAndReturn("failed to read %s: %v", path, err)
		}
		if info.IsDir() {
			fmt.Println(ui.Error.Sprint("✗") + " " + ui.Path.Sprint(path) + " is a directory")
			return nil
		}
		if info.Size() > workflows.MaxFileSize {
			fmt.Println(ui.Error.Sprint("✗") + " " + ui.Path.Sprint(path) + " is " + utils.FormatBytes(info.Size()) +
				", the limit is " + utils.FormatBytes(workflows.MaxFileSize))
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Logger.ErrorfAndReturn("failed to read %s: %v", path, err)
		}

		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Uploading...")
		defer cleanup()

		group, err := env.resolveGroup(cmd.Context(), args[0])
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		res, err := env.session.Upload(cmd.Context(), group.ID, secrets.FileInput{
			Name:     filepath.Base(path),
			MIMEType: uploadMIME,
			Data:     data,
		})
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		s.FinalMSG = ui.Success.Sprint("✓") + " Uploaded " + ui.Path.Sprint(res.Metadata.Name) + " to " + ui.Highlight.Sprint(group.Name) + "\n" +
			"  File:  " + res.Metadata.ID + "\n" +
			"  Type:  " + res.Metadata.MIMEType + ", " + utils.FormatBytes(res.Metadata.SizeBytes)
		return nil
	},
}

var filesDownloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download and decrypt a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Downloading...")
		defer cleanup()

		res, err := env.session.Download(cmd.Context(), args[0])
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		out := downloadOutput
		if out == "" {
			out = filepath.Base(res.Name)
		}
		if _, err := os.Stat(out); err == nil && !downloadForce {
			s.FinalMSG = ui.Error.Sprint("✗") + " " + ui.Path.Sprint(out) + " already exists\n" +
				ui.Info.Sprint("→") + " Use " + ui.Flag.Sprint("--force") + " to overwrite it or " + ui.Flag.Sprint("--output") + " to pick another path"
			return nil
		}
		if err := os.WriteFile(out, res.Data, 0600); err != nil {
			return Logger.ErrorfAndReturn("failed to write %s: %v", out, err)
		}

		s.FinalMSG = ui.Success.Sprint("✓") + " Saved " + ui.Path.Sprint(out) + " " + ui.Muted.Sprint(utils.FormatBytes(int64(len(res.Data))))
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <group> <file-id>",
	Short: "Delete a file from a group's vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Deleting...")
		defer cleanup()

		group, err := env.resolveGroup(cmd.Context(), args[0])
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}
		if err := env.session.DeleteFile(cmd.Context(), group.ID, args[1]); err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}

		s.FinalMSG = ui.Success.Sprint("✓") + " Deleted " + args[1] + " from " + ui.Highlight.Sprint(group.Name)
		return nil
	},
}

var filesListCmd = &cobra.Command{
	Use:   "list <group>",
	Short: "List the files shared in a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openSession()
		if err != nil {
			return report(err)
		}
		defer env.Close()

		s, cleanup := startSpinner("Listing files...")
		defer cleanup()

		group, err := env.resolveGroup(cmd.Context(), args[0])
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}
		files, err := env.session.ListFiles(cmd.Context(), group.ID)
		if err != nil {
			s.FinalMSG, err = explain(err)
			return err
		}
		cleanup()

		if len(files) == 0 {
			fmt.Println(ui.Muted.Sprint("No files in " + group.Name))
			return nil
		}
		now := time.Now()
		for _, f := range files {
			fmt.Println(formatRecord(f, "", now))
		}
		return nil
	},
}
