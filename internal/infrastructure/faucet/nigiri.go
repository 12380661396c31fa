package faucet

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ark-network/ark-wallet-api/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const DefaultCommand = "nigiri"

var txidRegexp = regexp.MustCompile(`(?i)txid:?\s*([0-9a-f]{64})`)

type nigiriFaucet struct {
	command string
}

// NewNigiriFaucet funds regtest addresses by shelling out to
// `<command> faucet <address> <amount>`.
func NewNigiriFaucet(command string) ports.Faucet {
	if len(command) <= 0 {
		command = DefaultCommand
	}
	return &nigiriFaucet{command}
}

func (f *nigiriFaucet) Fund(
	ctx context.Context, address string, amount float64,
) (string, string, error) {
	output, err := runCommand(
		ctx, f.command, "faucet", address, strconv.FormatFloat(amount, 'f', -1, 64),
	)
	if err != nil {
		return "", output, err
	}

	matches := txidRegexp.FindStringSubmatch(output)
	if len(matches) < 2 {
		return "", output, fmt.Errorf("txid not found in faucet output")
	}

	log.Debugf("funded %s with %v btc in tx %s", address, amount, matches[1])
	return strings.ToLower(matches[1]), output, nil
}

func runCommand(ctx context.Context, name string, arg ...string) (string, error) {
	errb := new(strings.Builder)
	cmd := exec.CommandContext(ctx, name, arg...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}

	if err := cmd.Start(); err != nil {
		return "", err
	}
	output := new(strings.Builder)
	errorb := new(strings.Builder)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := io.Copy(output, stdout); err != nil {
			fmt.Fprintf(errb, "error reading stdout: %s", err)
		}
	}()

	go func() {
		defer wg.Done()
		if _, err := io.Copy(errorb, stderr); err != nil {
			fmt.Fprintf(errb, "error reading stderr: %s", err)
		}
	}()

	wg.Wait()
	if err := cmd.Wait(); err != nil {
		if errMsg := strings.TrimSpace(errorb.String()); len(errMsg) > 0 {
			return output.String(), fmt.Errorf("%s", errMsg)
		}
		return output.String(), err
	}

	if errMsg := errb.String(); len(errMsg) > 0 {
		return output.String(), fmt.Errorf("%s", errMsg)
	}

	return strings.TrimSpace(output.String()), nil
}
