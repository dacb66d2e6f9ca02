// Command wcctl inspects and manipulates the Woodchuck daemon's entity
// tree from the command line: listing managers, streams and objects,
// registering and unregistering entities, and reading or writing
// properties.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	woodchuck "github.com/ralic/gnu-woodchuck"
	"github.com/ralic/gnu-woodchuck/busclient"
	"github.com/ralic/gnu-woodchuck/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagVerbose     bool
	flagRecursive   bool
	flagOnlyIfEmpty bool
	flagName        string
	flagParent      string
	flagUnique      bool
)

// newWoodchuck connects to the session bus and returns the daemon
// handle.
func newWoodchuck() (*woodchuck.Woodchuck, error) {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	bus, err := busclient.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to session bus: %w", err)
	}
	c, err := busclient.NewClient(bus, busclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("initializing client: %w", err)
	}
	return woodchuck.New(c), nil
}

var rootCmd = &cobra.Command{
	Use:           "wcctl",
	Short:         "Inspect and manage Woodchuck entities",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the Woodchuck daemon is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWoodchuck()
		if err != nil {
			return err
		}
		if !w.IsAvailable() {
			fmt.Println("woodchuck: not running")
			os.Exit(1)
		}
		fmt.Println("woodchuck: running")
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the entity tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWoodchuck()
		if err != nil {
			return err
		}
		managers, err := w.ListManagers(false)
		if err != nil {
			return fmt.Errorf("listing managers: %w", err)
		}
		for _, m := range managers {
			if err := printManager(m, ""); err != nil {
				return err
			}
		}
		return nil
	},
}

func printManager(m *woodchuck.Manager, indent string) error {
	cookie, err := m.Cookie()
	if err != nil {
		return err
	}
	name, err := m.HumanReadableName()
	if err != nil {
		return err
	}
	fmt.Printf("%smanager %s  cookie=%q  name=%q\n", indent, m.UUID(), cookie, name)

	if flagRecursive {
		children, err := m.ListManagers(false)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := printManager(child, indent+"  "); err != nil {
				return err
			}
		}
		streams, err := m.ListStreams()
		if err != nil {
			return err
		}
		for _, s := range streams {
			if err := printStream(s, indent+"  "); err != nil {
				return err
			}
		}
	}
	return nil
}

func printStream(s *woodchuck.Stream, indent string) error {
	cookie, err := s.Cookie()
	if err != nil {
		return err
	}
	fmt.Printf("%sstream %s  cookie=%q\n", indent, s.UUID(), cookie)

	objects, err := s.ListObjects()
	if err != nil {
		return err
	}
	for _, o := range objects {
		ocookie, err := o.Cookie()
		if err != nil {
			return err
		}
		fmt.Printf("%s  object %s  cookie=%q\n", indent, o.UUID(), ocookie)
	}
	return nil
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register entities",
}

var registerManagerCmd = &cobra.Command{
	Use:   "manager COOKIE",
	Short: "Register a top-level manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWoodchuck()
		if err != nil {
			return err
		}
		props := woodchuck.Properties{"cookie": args[0]}
		if flagName != "" {
			props["human_readable_name"] = flagName
		}
		m, err := w.RegisterManager(props, flagUnique)
		if err != nil {
			return fmt.Errorf("registering manager: %w", err)
		}
		fmt.Println(m.UUID())
		return nil
	},
}

var registerStreamCmd = &cobra.Command{
	Use:   "stream COOKIE",
	Short: "Register a stream under a manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWoodchuck()
		if err != nil {
			return err
		}
		m, err := w.ManagerByCookie(flagParent, true)
		if err != nil {
			return fmt.Errorf("resolving manager %q: %w", flagParent, err)
		}
		props := woodchuck.Properties{"cookie": args[0]}
		if flagName != "" {
			props["human_readable_name"] = flagName
		}
		s, err := m.RegisterStream(props, flagUnique)
		if err != nil {
			return fmt.Errorf("registering stream: %w", err)
		}
		fmt.Println(s.UUID())
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm COOKIE",
	Short: "Unregister the manager with the given cookie",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := newWoodchuck()
		if err != nil {
			return err
		}
		m, err := w.ManagerByCookie(args[0], true)
		if err != nil {
			return fmt.Errorf("resolving manager %q: %w", args[0], err)
		}
		if err := m.Unregister(flagOnlyIfEmpty); err != nil {
			if errors.IsUnavailable(err) {
				return fmt.Errorf("daemon went away: %w", err)
			}
			return fmt.Errorf("unregistering: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	lsCmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "descend into streams and objects")

	registerManagerCmd.Flags().StringVar(&flagName, "name", "", "human readable name")
	registerManagerCmd.Flags().BoolVar(&flagUnique, "unique", true, "fail if the cookie is already taken")
	registerStreamCmd.Flags().StringVar(&flagName, "name", "", "human readable name")
	registerStreamCmd.Flags().StringVar(&flagParent, "manager", "", "cookie of the owning manager")
	registerStreamCmd.Flags().BoolVar(&flagUnique, "unique", true, "fail if the cookie is already taken")
	_ = registerStreamCmd.MarkFlagRequired("manager")

	rmCmd.Flags().BoolVar(&flagOnlyIfEmpty, "only-if-empty", false, "refuse if the manager still has children")

	registerCmd.AddCommand(registerManagerCmd, registerStreamCmd)
	rootCmd.AddCommand(statusCmd, lsCmd, registerCmd, rmCmd)
}
