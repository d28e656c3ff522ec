package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glucomate/glucomate/internal/config"
	"github.com/glucomate/glucomate/internal/ingest"
	"github.com/glucomate/glucomate/internal/kb"
)

var patientID string

func patientFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&patientID, "patient", "p", "", "patient identifier")
	cmd.MarkFlagRequired("patient")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the companion",
	Long: `Talk to the companion. With a message argument, sends one message and
prints the reply. Without arguments, starts an interactive session.

Examples:
  glucomate chat -p sara "what should I eat for breakfast?"
  glucomate chat -p sara`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) > 0 {
			return sendMessage(client, strings.Join(args, " "))
		}

		fmt.Fprintln(os.Stderr, "Interactive session. Type \"exit\" to leave.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(os.Stderr, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}
			if err := sendMessage(client, line); err != nil {
				printError("%v", err)
			}
		}
	},
}

func sendMessage(client *apiClient, message string) error {
	resp, err := client.post(context.Background(), "/patients/"+patientID+"/messages", map[string]string{"message": message})
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printReply(result["reply"])
	return nil
}

// --- checkin ---

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Start the weekly check-in",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(context.Background(), "/patients/"+patientID+"/checkin", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printReply(result["reply"])

		// The check-in continues as a normal conversation.
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(os.Stderr, "> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := sendMessage(client, line); err != nil {
				return err
			}
			if line == "stop" || line == "cancel" {
				return nil
			}
		}
	},
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the patient's progress report",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), "/patients/"+patientID+"/report")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, result["report"])
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the patient profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), "/patients/"+patientID+"/profile")
		if err != nil {
			return err
		}
		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

// --- reading ---

var readingCmd = &cobra.Command{
	Use:   "reading <value>",
	Short: "Log a glucose reading in mg/dL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("value must be a number, got %q", args[0])
		}
		mealContext, _ := cmd.Flags().GetString("context")
		notes, _ := cmd.Flags().GetString("notes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(context.Background(), "/patients/"+patientID+"/readings", map[string]any{
			"value":        value,
			"meal_context": mealContext,
			"notes":        notes,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printReply(result["reply"])
		return nil
	},
}

// --- medication ---

var medicationCmd = &cobra.Command{
	Use:   "medication <name>",
	Short: "Add a medication with reminder times",
	Long: `Add a medication with reminder times.

Example:
  glucomate medication Metformin -p sara --dosage 500mg --times 08:00,20:00`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dosage, _ := cmd.Flags().GetString("dosage")
		frequency, _ := cmd.Flags().GetString("frequency")
		timesStr, _ := cmd.Flags().GetString("times")

		var slots []string
		if timesStr != "" {
			slots = strings.Split(timesStr, ",")
			for i := range slots {
				slots[i] = strings.TrimSpace(slots[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(context.Background(), "/patients/"+patientID+"/medications", map[string]any{
			"name":       args[0],
			"dosage":     dosage,
			"frequency":  frequency,
			"time_slots": slots,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Added %s (%s)", args[0], result["id"])
		return nil
	},
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Extract, chunk, and index a guideline document (.pdf, .txt, .md)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ingester := ingest.New(kb.New(cfg.KB.BaseURL))
		n, err := ingester.IngestFile(context.Background(), args[0])
		if err != nil {
			return err
		}
		printSuccess("Indexed %d chunks from %s", n, args[0])
		return nil
	},
}

func init() {
	patientFlag(chatCmd)
	patientFlag(checkinCmd)
	patientFlag(reportCmd)
	patientFlag(profileCmd)
	patientFlag(readingCmd)
	patientFlag(medicationCmd)

	readingCmd.Flags().String("context", "", "meal context, e.g. fasting or after lunch")
	readingCmd.Flags().String("notes", "", "free-form notes")

	medicationCmd.Flags().String("dosage", "", "dosage, e.g. 500mg")
	medicationCmd.Flags().String("frequency", "", "frequency, e.g. twice daily")
	medicationCmd.Flags().String("times", "", "comma-separated HH:MM reminder times")

	kbCmd.AddCommand(kbIngestCmd)
}
