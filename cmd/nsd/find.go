package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/nameservice/pkg/nameservice"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

var (
	findTransport string
	findPolicy    string
	findTimeout   time.Duration
	pingTimeout   time.Duration
)

var findCmd = &cobra.Command{
	Use:   "find <pattern>...",
	Short: "Discover advertised names matching the patterns",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFind,
}

var pingCmd = &cobra.Command{
	Use:   "ping <guid> <name>",
	Short: "Ask a daemon whether it still advertises a name",
	Args:  cobra.ExactArgs(2),
	RunE:  runPing,
}

func init() {
	findCmd.Flags().StringVarP(&findTransport, "transport", "t", "all", "Transport to search: tcp, udp or all")
	findCmd.Flags().StringVar(&findPolicy, "policy", nameservice.UntilAllAnswered.String(), "Retry policy: always, until-first-answer, until-all-answered")
	findCmd.Flags().DurationVar(&findTimeout, "timeout", 10*time.Second, "How long to listen (0 runs until interrupted)")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "How long to wait for the peer and its reply")
}

func signalContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() { cancel(); stop() }
}

func runFind(cmd *cobra.Command, args []string) error {
	mask, err := parseTransport(findTransport)
	if err != nil {
		return err
	}
	policy, err := parsePolicy(findPolicy)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context(), findTimeout)
	defer cancel()

	d, err := startDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.stop()

	found := d.service.SubscribeDiscovery(256)
	if err := d.service.FindAdvertisement(mask, policy, args...); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "EVENT\tGUID\tTRANSPORT\tENDPOINT\tTIMER\tPRIORITY\tNAMES")
	w.Flush()
	for {
		select {
		case ev, ok := <-found:
			if !ok {
				return nil
			}
			kind := "found"
			if ev.Withdrawn() {
				kind = "lost"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				kind, ev.GUID, ev.Transport, ev.Endpoint, ev.Timer, ev.Priority, strings.Join(ev.Names, ","))
			w.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	guid, name := args[0], args[1]
	ctx, cancel := signalContext(cmd.Context(), pingTimeout)
	defer cancel()

	d, err := startDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.stop()

	// the peer has to be heard from before it can be pinged
	found := d.service.SubscribeDiscovery(256)
	pings := d.service.SubscribePing(4)
	if err := d.service.FindAdvertisement(wire.TransportAll, nameservice.UntilFirstAnswer, "*"); err != nil {
		return err
	}
	pinged := false
	tryPing := func() error {
		if pinged {
			return nil
		}
		if _, ok := d.service.Peer(guid); !ok {
			return nil
		}
		pinged = true
		return d.service.Ping(guid, name)
	}
	if err := tryPing(); err != nil {
		return err
	}

	for {
		select {
		case <-found:
			if err := tryPing(); err != nil {
				return err
			}
		case ev := <-pings:
			switch {
			case ev.TimedOut:
				return fmt.Errorf("no reply from %s", guid)
			default:
				fmt.Printf("%s %s: %s\n", ev.GUID, ev.Name, ev.Reply)
				return nil
			}
		case <-ctx.Done():
			if !pinged {
				return fmt.Errorf("peer %s not found", guid)
			}
			return fmt.Errorf("timed out waiting for a reply from %s", guid)
		}
	}
}
