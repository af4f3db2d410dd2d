package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"patientmon/internal/alerts"
	"patientmon/internal/config"
	"patientmon/internal/logger"
	"patientmon/internal/medical"
	"patientmon/internal/models"
	"patientmon/internal/monitor"
	"patientmon/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the loaded configuration to subcommands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "patientmon",
		Short:        "Patient vital-sign monitor",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.patientCmd())
	rootCmd.AddCommand(a.checkCmd())
	return rootCmd
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and reading pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(a.cfg.LogLevel, a.cfg.IsDev())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return monitor.New(a.cfg).Run(ctx)
		},
	}
}

func (a *app) patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage patient records",
	}

	var (
		in       models.PatientInfo
		birth    string
		normalTC string
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			birthDate, err := models.ParseBirthDate(birth)
			if err != nil {
				return fmt.Errorf("birth-date: %w", err)
			}
			normal, err := decimal.NewFromString(normalTC)
			if err != nil {
				return fmt.Errorf("normal-temperature: %w", err)
			}
			in.BirthDate = birthDate
			in.HealthInfo.NormalTemperature = normal
			if err := in.Validate(); err != nil {
				return err
			}

			return a.withStore(cmd.Context(), func(store repository.Store) error {
				id, err := store.Add(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&in.ID, "id", "", "patient id (generated when empty)")
	addCmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	addCmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	addCmd.Flags().StringVar(&birth, "birth-date", "", "birth date (YYYY-MM-DD)")
	addCmd.Flags().StringVar(&normalTC, "normal-temperature", "36.6", "baseline body temperature")
	addCmd.Flags().IntVar(&in.HealthInfo.BloodPressure.High, "bp-high", 120, "baseline systolic pressure")
	addCmd.Flags().IntVar(&in.HealthInfo.BloodPressure.Low, "bp-low", 80, "baseline diastolic pressure")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a patient record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store repository.Store) error {
				p, err := store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			})
		},
	})

	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a reading against a patient's baseline",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "temperature <id> <value>",
		Short: "Check a body temperature reading",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("temperature: %w", err)
			}
			return a.runCheck(cmd, func(ctx context.Context, svc *medical.Service) error {
				return svc.CheckTemperature(ctx, args[0], current)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pressure <id> <high> <low>",
		Short: "Check a blood pressure reading",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			high, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("high: %w", err)
			}
			low, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("low: %w", err)
			}
			current := models.BloodPressure{High: high, Low: low}
			return a.runCheck(cmd, func(ctx context.Context, svc *medical.Service) error {
				return svc.CheckBloodPressure(ctx, args[0], current)
			})
		},
	})

	return cmd
}

// runCheck runs one check against the configured store and prints any alert.
func (a *app) runCheck(cmd *cobra.Command, check func(context.Context, *medical.Service) error) error {
	return a.withStore(cmd.Context(), func(store repository.Store) error {
		out := cmd.OutOrStdout()
		alerted := false
		sender := alerts.SenderFunc(func(ctx context.Context, message string) error {
			alerted = true
			_, err := fmt.Fprintln(out, message)
			return err
		})

		if err := check(cmd.Context(), medical.NewService(store, sender)); err != nil {
			return err
		}
		if !alerted {
			fmt.Fprintln(out, "ok")
		}
		return nil
	})
}

func (a *app) withStore(ctx context.Context, fn func(repository.Store) error) error {
	if a.cfg.Repository.Backend == config.BackendMemory {
		return errors.New("patient commands need a persistent backend: set REPOSITORY_BACKEND to file or postgres")
	}

	logger.InitWithWriter(a.cfg.LogLevel, os.Stderr)

	store, err := repository.Open(ctx, a.cfg.Repository)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}
