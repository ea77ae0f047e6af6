package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tessro/nstream/internal/broadlink"
	nserrors "github.com/tessro/nstream/internal/errors"
	"github.com/tessro/nstream/internal/remote"
)

var pressCmd = &cobra.Command{
	Use:   "press <button>",
	Short: "Press a remote button over IR/RF",
	Long: `Transmits the learned code for a button through the configured
Broadlink blaster. Run 'nstream buttons' for the available ids.`,
	Args: cobra.ExactArgs(1),
	RunE: runPress,
}

var buttonsCmd = &cobra.Command{
	Use:   "buttons",
	Short: "List the learned remote buttons",
	RunE:  runButtons,
}

func init() {
	rootCmd.AddCommand(pressCmd)
	rootCmd.AddCommand(buttonsCmd)
}

// buildBridge wires the catalog and the blaster from config. Returns nil
// without error when no remote is configured.
func buildBridge(ctx context.Context) (*remote.Bridge, error) {
	if cfg.Remote.Host == "" {
		return nil, nil
	}
	if cfg.Remote.Buttons == "" {
		return nil, fmt.Errorf("%w: [remote] buttons path is not set", nserrors.ErrInvalidConfig)
	}

	mac, err := net.ParseMAC(cfg.Remote.MAC)
	if err != nil {
		return nil, fmt.Errorf("%w: [remote] mac: %v", nserrors.ErrInvalidConfig, err)
	}

	catalog, err := remote.LoadCatalog(cfg.Remote.Buttons, log)
	if err != nil {
		return nil, err
	}

	device := broadlink.NewDevice(cfg.Remote.Host, mac, 5*time.Second)
	authCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := device.Auth(authCtx); err != nil {
		return nil, err
	}

	window := time.Duration(cfg.Remote.DebounceMS) * time.Millisecond
	return remote.NewBridge(device, catalog, window, log), nil
}

func runPress(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	bridge, err := buildBridge(ctx)
	if err != nil {
		return err
	}
	if bridge == nil {
		return nserrors.ErrNoRemote
	}

	if err := bridge.Press(ctx, args[0]); err != nil {
		return err
	}

	printStatus("pressed", "Pressed "+args[0])
	return nil
}

func runButtons(cmd *cobra.Command, args []string) error {
	if cfg.Remote.Buttons == "" {
		return nserrors.ErrNoRemote
	}

	catalog, err := remote.LoadCatalog(cfg.Remote.Buttons, log)
	if err != nil {
		return err
	}

	ids := catalog.Buttons()
	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"buttons": ids})
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
