// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

type embeddedParams struct {
	Socket string `flag:"socket" default:"/run/lockvault.sock" desc:"daemon socket"`
}

type allTypesParams struct {
	embeddedParams
	JSONOutput
	Key      string        `flag:"key,k" desc:"key file"`
	Force    bool          `flag:"force" desc:"overwrite"`
	Work     int           `flag:"work-factor" default:"18" desc:"scrypt work factor"`
	Amount   uint64        `flag:"amount" default:"5" desc:"amount"`
	Timeout  time.Duration `flag:"timeout" default:"3s" desc:"timeout"`
	Extra    []string      `flag:"deny" desc:"extra selectors"`
	Untagged string
}

func TestBindFlagsDefaults(t *testing.T) {
	var params allTypesParams
	flagSet := FlagsFromParams("test", &params)
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if params.Socket != "/run/lockvault.sock" {
		t.Errorf("Socket = %q", params.Socket)
	}
	if params.Work != 18 || params.Amount != 5 || params.Timeout != 3*time.Second {
		t.Errorf("defaults = %+v", params)
	}
	if flagSet.Lookup("json") == nil {
		t.Error("embedded JSONOutput did not bind --json")
	}
}

func TestBindFlagsParse(t *testing.T) {
	var params allTypesParams
	flagSet := FlagsFromParams("test", &params)
	args := []string{"-k", "owner.key", "--force", "--amount", "18446744073709551615", "--deny", "0xa9059cbb,0x23b872dd", "--json"}
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if params.Key != "owner.key" || !params.Force || !params.OutputJSON {
		t.Errorf("params = %+v", params)
	}
	if params.Amount != 1<<64-1 {
		t.Errorf("Amount = %d", params.Amount)
	}
	if len(params.Extra) != 2 || params.Extra[1] != "0x23b872dd" {
		t.Errorf("Extra = %v", params.Extra)
	}
}

func TestBindFlagsRejectsBadInput(t *testing.T) {
	if err := BindFlags(struct{}{}, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a non-pointer")
	}

	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a float32 field")
	}

	var badDefault struct {
		Amount uint64 `flag:"amount" default:"-1"`
	}
	if err := BindFlags(&badDefault, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a negative uint64 default")
	}
}

func TestEmitJSON(t *testing.T) {
	var out bytes.Buffer
	output := JSONOutput{}
	if done, _ := output.EmitJSON(&out, []string{"a"}); done {
		t.Fatal("EmitJSON wrote without --json")
	}

	output.OutputJSON = true
	var empty []string
	done, err := output.EmitJSON(&out, empty)
	if !done || err != nil {
		t.Fatalf("EmitJSON = (%v, %v)", done, err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", out.String())
	}
}
