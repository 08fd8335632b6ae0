package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"tradecore/internal/strategy"
)

// Decision is one NDJSON line of the decision log: what a hook decided for a
// symbol and what the host did with it.
type Decision struct {
	RunID          string        `json:"run_id"`
	Timestamp      time.Time     `json:"timestamp"`
	BarTime        time.Time     `json:"bar_time"`
	Session        string        `json:"session"`
	Symbol         string        `json:"symbol"`
	Strategy       string        `json:"strategy"`
	Hook           string        `json:"hook"`
	Close          float64       `json:"close"`
	Reason         string        `json:"reason"`
	Side           strategy.Side `json:"side,omitempty"`
	IntentQty      int           `json:"intent_qty"`
	StopLoss       *float64      `json:"stop_loss,omitempty"`
	Liquidate      bool          `json:"liquidate,omitempty"`
	Result         string        `json:"result"`
	ApprovalReason string        `json:"approval_reason,omitempty"`
	RejectReason   string        `json:"reject_reason,omitempty"`
	OrderID        string        `json:"order_id,omitempty"`
	ClientOrderID  string        `json:"client_order_id,omitempty"`
}

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	counts map[string]map[string]int
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
		counts: map[string]map[string]int{},
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.counts[decision.Symbol] == nil {
		d.counts[decision.Symbol] = map[string]int{}
	}
	d.counts[decision.Symbol][decision.Result]++

	payload, err := json.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

// Counts returns how many decisions were logged per result for symbol.
func (d *DecisionLogger) Counts(symbol string) map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.counts[symbol]))
	for result, n := range d.counts[symbol] {
		out[result] = n
	}
	return out
}

var summaryResults = []string{resultHold, resultDryRun, resultSubmitted, resultRejected, resultBuildFailed, resultOrderFailed}

// Summary renders the per-symbol decision counts of this run as a table.
func (d *DecisionLogger) Summary(w io.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	symbols := make([]string, 0, len(d.counts))
	for symbol := range d.counts {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	table := tablewriter.NewWriter(w)
	table.SetHeader(append([]string{"symbol"}, summaryResults...))
	for _, symbol := range symbols {
		row := []string{symbol}
		for _, result := range summaryResults {
			row = append(row, strconv.Itoa(d.counts[symbol][result]))
		}
		table.Append(row)
	}
	table.Render()
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
