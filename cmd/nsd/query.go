package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
)

var (
	queryTimeout time.Duration
	queryUnicast bool
)

var queryCmd = &cobra.Command{
	Use:   "query <name> [type]",
	Short: "Send an mDNS query and print the responses",
	Long: `query multicasts a plain mDNS question, e.g. "nsd query _busns._tcp.local PTR",
and prints every response the name service does not consume itself.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 3*time.Second, "How long to collect responses")
	queryCmd.Flags().BoolVar(&queryUnicast, "unicast", false, "Request unicast responses (QU bit)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	qtype := dns.TypePTR
	if len(args) == 2 {
		t, ok := dns.StringToType[strings.ToUpper(args[1])]
		if !ok {
			return fmt.Errorf("unknown record type %q", args[1])
		}
		qtype = t
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(args[0]), qtype)
	m.Id = 0
	m.RecursionDesired = false
	if queryUnicast {
		m.Question[0].Qclass |= mdns.QU
	}
	p, err := mdns.FromMsg(m)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), queryTimeout)
	defer cancel()
	d, err := startDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.stop()

	raw := d.service.SubscribeRaw(64)
	if err := d.service.Query(p); err != nil {
		return err
	}
	for {
		select {
		case ev, ok := <-raw:
			if !ok {
				return nil
			}
			if !ev.Packet.Response {
				continue
			}
			fmt.Printf(";; from %s on %s\n%s\n", ev.From, ev.Interface, ev.Packet)
		case <-ctx.Done():
			return nil
		}
	}
}
