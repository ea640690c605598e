package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/nameservice/pkg/logging"
)

var (
	advertiseNames []string
	quietNames     []string
	transportFlag  string
	portFlag       uint16
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the name service until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), advertiseNames, quietNames)
	},
}

var advertiseCmd = &cobra.Command{
	Use:   "advertise <name>...",
	Short: "Advertise names until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		if quiet {
			return serve(cmd.Context(), nil, args)
		}
		return serve(cmd.Context(), args, nil)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, advertiseCmd} {
		c.Flags().StringVarP(&transportFlag, "transport", "t", "tcp", "Transport the names are reachable on: tcp, udp or all")
		c.Flags().Uint16VarP(&portFlag, "port", "p", 9955, "Port the transport listens on")
	}
	runCmd.Flags().StringSliceVar(&advertiseNames, "advertise", nil, "Names to advertise")
	runCmd.Flags().StringSliceVar(&quietNames, "quiet", nil, "Names to answer for without announcing")
	advertiseCmd.Flags().Bool("quiet", false, "Only answer questions, never announce")
}

func serve(ctx context.Context, loud, quiet []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mask, err := parseTransport(transportFlag)
	if err != nil {
		return err
	}

	d, err := startDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.stop()

	if len(loud)+len(quiet) > 0 {
		if err := d.enable(mask, portFlag); err != nil {
			return err
		}
	}
	for _, name := range loud {
		if err := d.service.AdvertiseName(mask, name, false); err != nil {
			return err
		}
	}
	for _, name := range quiet {
		if err := d.service.AdvertiseName(mask, name, true); err != nil {
			return err
		}
	}

	network := d.service.SubscribeNetwork(16)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(c)

	for {
		select {
		case ev, ok := <-network:
			if !ok {
				return nil
			}
			d.logger.ComponentInfo(logging.ComponentCLI, "Network change",
				zap.String("interface", ev.Interface),
				zap.Bool("up", ev.Up))
		case sig := <-c:
			if sig == syscall.SIGHUP {
				d.logger.ComponentInfo(logging.ComponentCLI, "Rescanning interfaces")
				d.service.NotifyNetworkChange()
				continue
			}
			d.logger.ComponentInfo(logging.ComponentCLI, "Shutting down name service...")
			for _, name := range loud {
				_ = d.service.CancelAdvertiseName(mask, name)
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
