package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ethosengine/elohim-recovery/internal/config"
	"github.com/ethosengine/elohim-recovery/internal/doorway"
	"github.com/ethosengine/elohim-recovery/internal/models"
	"github.com/ethosengine/elohim-recovery/internal/recovery"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "steward",
		Short: "Recovery steward - claimant and interviewer CLI",
		Long:  `A CLI for the recovery coordination protocol: initiate identity recovery as a claimant, or conduct interviews and cast attestations as an interviewer.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.toml)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(interviewCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a steward",
		Long:  `Initialize a steward by writing a config file with the local identity and the selected doorway.`,
		RunE:  runInit,
	}

	cmd.Flags().String("identity", "", "Identity ID this steward acts as (required)")
	cmd.Flags().String("name", "", "Display name shown to claimants")
	cmd.Flags().String("doorway-url", "http://localhost:8080", "Doorway API URL")
	cmd.Flags().String("doorway-name", "Local Doorway", "Doorway display name")
	cmd.Flags().String("auth-token", "", "Bearer token for interviewer endpoints")
	cmd.MarkFlagRequired("identity")

	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	identity, _ := cmd.Flags().GetString("identity")
	name, _ := cmd.Flags().GetString("name")
	doorwayURL, _ := cmd.Flags().GetString("doorway-url")
	doorwayName, _ := cmd.Flags().GetString("doorway-name")
	authToken, _ := cmd.Flags().GetString("auth-token")

	cfg := config.DefaultConfig()
	cfg.Steward.IdentityID = identity
	cfg.Steward.DisplayName = name
	cfg.Doorway = config.DoorwayConfig{
		Name:      doorwayName,
		URL:       doorwayURL,
		AuthToken: authToken,
	}

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	configPath := cfgFile
	if configPath == "" {
		configPath = "config.toml"
	}
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Steward initialized successfully!\n")
	fmt.Printf("Identity: %s\n", identity)
	fmt.Printf("Doorway: %s (%s)\n", doorwayName, doorwayURL)
	fmt.Printf("Config saved to: %s\n", configPath)

	return nil
}

// session wires a Coordinator from the config and session files and saves
// the session back after the command ran.
type session struct {
	cfg         *config.Config
	sess        *config.Session
	sessionPath string
	coord       *recovery.Coordinator
}

func openSession() (*session, error) {
	configPath := cfgFile
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	sessionPath := filepath.Join(cfg.Steward.DataDir, "session.toml")
	sess, err := config.LoadSession(sessionPath)
	if err != nil {
		return nil, err
	}

	var api recovery.API
	if cfg.Doorway.Selected() {
		api = doorway.NewClient(&cfg.Doorway)
	}

	var opts []recovery.Option
	if sess.ActiveRequestID != "" {
		opts = append(opts, recovery.WithActiveRequest(&models.RecoveryRequest{ID: sess.ActiveRequestID}))
	}
	if sess.Credential != nil {
		opts = append(opts, recovery.WithCredential(sess.Credential))
	}
	if sess.InterviewID != "" {
		opts = append(opts, recovery.WithInterview(&models.RecoveryInterview{
			ID:        sess.InterviewID,
			RequestID: sess.InterviewReqID,
		}))
	}

	return &session{
		cfg:         cfg,
		sess:        sess,
		sessionPath: sessionPath,
		coord:       recovery.NewCoordinator(api, opts...),
	}, nil
}

// save persists the coordinator state back into the session file.
func (s *session) save() error {
	s.sess.ActiveRequestID = ""
	if req := s.coord.ActiveRequest(); req != nil {
		s.sess.ActiveRequestID = req.ID
	}
	s.sess.Credential = s.coord.Credential()
	s.sess.InterviewID = ""
	s.sess.InterviewReqID = ""
	if iv := s.coord.Interview(); iv != nil {
		s.sess.InterviewID = iv.ID
		s.sess.InterviewReqID = iv.RequestID
	}
	return s.sess.Save(s.sessionPath)
}

// fail renders the coordinator's error signal as a command error.
func (s *session) fail() error {
	msg := s.coord.LastError()
	if msg == "" {
		msg = "operation failed"
	}
	return fmt.Errorf("%s", msg)
}

func recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover [identity]",
		Short: "Initiate recovery of an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claimantContext, _ := cmd.Flags().GetString("context")

			s, err := openSession()
			if err != nil {
				return err
			}

			if !s.coord.InitiateRecovery(context.Background(), args[0], claimantContext) {
				return s.fail()
			}
			if err := s.save(); err != nil {
				return err
			}

			req := s.coord.ActiveRequest()
			fmt.Printf("Recovery request created: %s\n", req.ID)
			fmt.Printf("Status: %s\n", req.Status)
			fmt.Printf("Required attestations: %d\n", req.RequiredAttestations)
			fmt.Printf("Expires: %s\n", req.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().String("context", "", "Free-text context shown to interviewers")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active recovery request",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			if !s.coord.HasActiveRequest() {
				fmt.Println("No active recovery request.")
				return nil
			}
			if !s.coord.RefreshRequestStatus(context.Background()) {
				return s.fail()
			}
			if err := s.save(); err != nil {
				return err
			}

			req := s.coord.ActiveRequest()
			fmt.Printf("Request: %s\n", req.ID)
			fmt.Printf("Identity: %s\n", req.ClaimedIdentity)
			fmt.Printf("Status: %s\n", req.Status)
			if p := s.coord.Progress(); p != nil {
				fmt.Printf("Progress: %d%% (%d/%d affirmed, %d denied, %d abstained)\n",
					p.ProgressPercent, p.AffirmCount, p.RequiredCount, p.DenyCount, p.AbstainCount)
				if p.IsDenied {
					fmt.Println("The request was denied by the attester community.")
				}
			}
			if cred := s.coord.Credential(); cred != nil && !cred.Claimed {
				fmt.Printf("Credential issued, expires %s. Run 'steward complete' to claim it.\n",
					cred.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active recovery request",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			ok := s.coord.CancelRecovery(context.Background())
			if err := s.save(); err != nil {
				return err
			}
			if !ok {
				return s.fail()
			}

			fmt.Println("Recovery request cancelled.")
			return nil
		},
	}
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete",
		Short: "Redeem the issued recovery credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			if !s.coord.CompleteRecovery(context.Background()) {
				return s.fail()
			}
			if err := s.save(); err != nil {
				return err
			}

			fmt.Println("Recovery completed. The identity has been restored.")
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List recovery requests awaiting your attestation",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			if !s.coord.LoadPendingRequests(context.Background()) {
				return s.fail()
			}

			pending := s.coord.PendingRequests()
			if len(pending) == 0 {
				fmt.Println("No pending recovery requests.")
				return nil
			}

			fmt.Printf("Pending recovery requests (%d):\n", len(pending))
			fmt.Printf("%-24s %-16s %-10s %-10s %-10s %s\n",
				"REQUEST ID", "IDENTITY", "PROGRESS", "EXPIRES", "PRIORITY", "ATTESTED")
			for _, p := range pending {
				attested := ""
				if p.AlreadyAttested {
					attested = "yes"
				}
				fmt.Printf("%-24s %-16s %-10s %-10s %-10s %s\n",
					p.RequestID, p.MaskedIdentity,
					fmt.Sprintf("%d%%", p.Progress.ProgressPercent),
					formatExpiry(p.ExpiresIn), p.Priority, attested)
			}
			return nil
		},
	}
}

func interviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Conduct a recovery interview",
		Long:  `Conduct a structured interview against a pending recovery request, relay the claimant's answers, and cast an attestation.`,
	}

	cmd.AddCommand(interviewStartCmd())
	cmd.AddCommand(interviewQuestionsCmd())
	cmd.AddCommand(interviewAnswerCmd())
	cmd.AddCommand(interviewAttestCmd())
	cmd.AddCommand(interviewAbandonCmd())
	return cmd
}

func interviewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start [request-id]",
		Short: "Start an interview for a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			if !s.coord.StartInterview(context.Background(), args[0]) {
				return s.fail()
			}
			if err := s.save(); err != nil {
				return err
			}

			iv := s.coord.Interview()
			fmt.Printf("Interview started: %s\n", iv.ID)
			fmt.Println("Run 'steward interview questions' to draw a question set.")
			return nil
		},
	}
}

func interviewQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "Generate a question set for the interview",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			iv := s.coord.Interview()
			if iv == nil {
				return fmt.Errorf("%s", recovery.ErrNoActiveInterview)
			}

			questions := s.coord.GenerateQuestions(context.Background(), iv.RequestID)
			if len(questions) == 0 {
				fmt.Println("No questions available; try again.")
				return nil
			}

			fmt.Printf("Interview questions (%d):\n", len(questions))
			for _, q := range questions {
				verifiable := ""
				if q.Verifiable {
					verifiable = " (verifiable)"
				}
				fmt.Printf("  [%s] %s%s\n", q.ID, q.Question, verifiable)
				fmt.Printf("      difficulty %d, %d points\n", q.Difficulty, q.Points)
			}
			return nil
		},
	}
}

func interviewAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer [question-id] [answer]",
		Short: "Relay the claimant's answer to a question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			resp := s.coord.SubmitResponse(context.Background(), args[0], strings.Join(args[1:], " "))
			if resp == nil {
				return s.fail()
			}

			switch {
			case resp.Correct == nil:
				fmt.Println("Answer recorded. Not verifiable; judge it yourself.")
			case *resp.Correct:
				fmt.Printf("Answer recorded. Correct (+%d points).\n", resp.PointsAwarded)
			default:
				fmt.Println("Answer recorded. Incorrect.")
			}
			return nil
		},
	}
}

func interviewAttestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attest [affirm|deny|abstain]",
		Short: "Cast your verdict for the interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confidence, _ := cmd.Flags().GetInt("confidence")
			notes, _ := cmd.Flags().GetString("notes")

			decision := models.Decision(args[0])
			if !decision.Valid() {
				return fmt.Errorf("unknown decision %q: use affirm, deny or abstain", args[0])
			}

			s, err := openSession()
			if err != nil {
				return err
			}

			if !s.coord.SubmitAttestation(context.Background(), decision, confidence, notes) {
				return s.fail()
			}
			if err := s.save(); err != nil {
				return err
			}

			fmt.Printf("Attestation cast: %s (confidence %d).\n", decision, confidence)
			fmt.Printf("Pending requests remaining: %d\n", s.coord.PendingCount())
			return nil
		},
	}

	cmd.Flags().Int("confidence", 80, "Confidence in the verdict, 0-100")
	cmd.Flags().String("notes", "", "Free-text notes for the record")
	return cmd
}

func interviewAbandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon",
		Short: "Discard the interview without casting a verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}

			s.coord.AbandonInterview()
			if err := s.save(); err != nil {
				return err
			}

			fmt.Println("Interview abandoned.")
			return nil
		},
	}
}

func formatExpiry(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d >= 24*time.Hour {
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
