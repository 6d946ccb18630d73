package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kanzlei-labs/intake-service/internal/model"
)

var processAttachments []string

var processCmd = &cobra.Command{
	Use:   "process <email.eml>",
	Short: "Run one email through the intake pipeline and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initIntake()
		if err != nil {
			return err
		}

		raw := model.RawIntake{EmailFilename: filepath.Base(args[0])}
		raw.Email, err = os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read email file")
		}

		for _, path := range processAttachments {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read attachment %s", path)
			}
			raw.Uploads = append(raw.Uploads, model.Attachment{
				Filename: filepath.Base(path),
				Data:     data,
				Size:     len(data),
			})
		}

		jobID := uuid.NewString()
		env.Tracker.Create(jobID)

		result, err := env.Orchestrator.Process(cmd.Context(), jobID, raw)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))

		return nil
	},
}

func init() {
	processCmd.Flags().StringSliceVar(&processAttachments, "attach", nil, "additional attachment files (repeatable)")
	rootCmd.AddCommand(processCmd)
}
