// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signet.
//
// go-signet is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/batch"
	"github.com/jeremyhahn/go-signet/pkg/multisig"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintKeyList prints a list of keys
func (p *Printer) PrintKeyList(keys []types.KeyInfo) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"keys": keys,
		})
	case OutputFormatTable:
		if len(keys) == 0 {
			fmt.Fprintln(p.writer, "No keys found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-24s %-12s %-10s %-4s %-20s %s\n",
			"NAME", "ALGORITHM", "STATUS", "VER", "CREATED", "FINGERPRINT")
		fmt.Fprintln(p.writer, strings.Repeat("-", 110))
		for _, key := range keys {
			fmt.Fprintf(p.writer, "%-24s %-12s %-10s %-4d %-20s %s\n",
				key.Name, key.Algorithm, key.Status, key.Version,
				key.CreatedAt.Format(time.RFC3339), shortFingerprint(key.Fingerprint))
		}
		return nil
	case OutputFormatText:
		if len(keys) == 0 {
			fmt.Fprintln(p.writer, "No keys found")
			return nil
		}
		fmt.Fprintln(p.writer, "Keys:")
		for _, key := range keys {
			fmt.Fprintf(p.writer, "  - %s (%s, %s, v%d)\n",
				key.Name, key.Algorithm, key.Status, key.Version)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintKeyInfo prints detailed key information
func (p *Printer) PrintKeyInfo(key types.KeyInfo) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(key)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, "Key Information:")
		fmt.Fprintf(p.writer, "  Name:        %s\n", key.Name)
		fmt.Fprintf(p.writer, "  Algorithm:   %s\n", key.Algorithm)
		fmt.Fprintf(p.writer, "  Status:      %s\n", key.Status)
		fmt.Fprintf(p.writer, "  Version:     %d\n", key.Version)
		fmt.Fprintf(p.writer, "  Fingerprint: %s\n", key.Fingerprint)
		fmt.Fprintf(p.writer, "  Created:     %s\n", key.CreatedAt.Format(time.RFC3339))
		if key.RotatedAt != nil {
			fmt.Fprintf(p.writer, "  Rotated:     %s\n", key.RotatedAt.Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintPublicKey prints an exported public key in PEM form
func (p *Printer) PrintPublicKey(name, pem string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"name":       name,
			"public_key": pem,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprint(p.writer, pem)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintTrustList prints the trust registry entries
func (p *Printer) PrintTrustList(entries []*types.TrustEntry) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"entries": entries,
		})
	case OutputFormatTable:
		if len(entries) == 0 {
			fmt.Fprintln(p.writer, "No trust entries found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-20s %-24s %-10s %-20s %s\n",
			"FINGERPRINT", "KEY", "STATE", "TRUSTED", "REASON")
		fmt.Fprintln(p.writer, strings.Repeat("-", 100))
		for _, entry := range entries {
			state := "trusted"
			reason := ""
			if entry.Revoked() {
				state = "revoked"
				reason = entry.RevocationReason
			}
			fmt.Fprintf(p.writer, "%-20s %-24s %-10s %-20s %s\n",
				shortFingerprint(entry.Fingerprint), entry.KeyName, state,
				entry.TrustedAt.Format(time.RFC3339), reason)
		}
		return nil
	case OutputFormatText:
		if len(entries) == 0 {
			fmt.Fprintln(p.writer, "No trust entries found")
			return nil
		}
		fmt.Fprintln(p.writer, "Trust entries:")
		for _, entry := range entries {
			state := "trusted"
			if entry.Revoked() {
				state = "revoked"
			}
			fmt.Fprintf(p.writer, "  - %s (%s, %s)\n",
				shortFingerprint(entry.Fingerprint), entry.KeyName, state)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintTrustEntry prints a single trust registry entry
func (p *Printer) PrintTrustEntry(entry *types.TrustEntry) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(entry)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, "Trust Entry:")
		fmt.Fprintf(p.writer, "  Fingerprint: %s\n", entry.Fingerprint)
		fmt.Fprintf(p.writer, "  Key:         %s\n", entry.KeyName)
		if entry.Description != "" {
			fmt.Fprintf(p.writer, "  Description: %s\n", entry.Description)
		}
		fmt.Fprintf(p.writer, "  Trusted:     %s\n", entry.TrustedAt.Format(time.RFC3339))
		if entry.Revoked() {
			fmt.Fprintf(p.writer, "  Revoked:     %s\n", entry.RevokedAt.Format(time.RFC3339))
			if entry.RevocationReason != "" {
				fmt.Fprintf(p.writer, "  Reason:      %s\n", entry.RevocationReason)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintTrustEvaluation prints a trust verdict for a fingerprint
func (p *Printer) PrintTrustEvaluation(fingerprint string, state types.TrustState) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"fingerprint": fingerprint,
			"state":       state,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "%s: %s\n", fingerprint, state)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSignature prints an encoded signature artifact
func (p *Printer) PrintSignature(keyName, format string, encoded []byte) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"key_name": keyName,
			"format":   format,
			"envelope": string(encoded),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, string(encoded))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintVerifyResult prints a verification verdict
func (p *Printer) PrintVerifyResult(result *verification.Result) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			"valid": result.Valid,
		}
		if !result.Valid {
			out["reason"] = result.Reason.String()
			if result.Detail != "" {
				out["detail"] = result.Detail
			}
		}
		if result.TrustChecked {
			out["trust_checked"] = true
			out["trusted"] = result.Trusted
			if result.TrustReason != "" {
				out["trust_reason"] = result.TrustReason
			}
		}
		if result.Envelope != nil {
			out["key_name"] = result.Envelope.KeyName
			out["fingerprint"] = result.Envelope.Fingerprint
		}
		return p.printJSON(out)
	case OutputFormatTable, OutputFormatText:
		if result.Valid {
			fmt.Fprintln(p.writer, "Signature: VALID")
		} else {
			fmt.Fprintf(p.writer, "Signature: INVALID (%s)\n", result.Reason)
			if result.Detail != "" {
				fmt.Fprintf(p.writer, "  Detail: %s\n", result.Detail)
			}
		}
		if result.Envelope != nil {
			fmt.Fprintf(p.writer, "  Key:         %s\n", result.Envelope.KeyName)
			fmt.Fprintf(p.writer, "  Fingerprint: %s\n", result.Envelope.Fingerprint)
		}
		if result.TrustChecked {
			if result.Trusted {
				fmt.Fprintln(p.writer, "  Trust:       trusted")
			} else {
				fmt.Fprintf(p.writer, "  Trust:       %s\n", result.TrustReason)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintIntegrityReport prints an envelope introspection report
func (p *Printer) PrintIntegrityReport(report *verification.IntegrityReport) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			"parseable": report.Parseable,
		}
		if report.ParseError != "" {
			out["parse_error"] = report.ParseError
		}
		if report.Parseable {
			out["expired"] = report.Expired
			out["envelope"] = report.Envelope
		}
		return p.printJSON(out)
	case OutputFormatTable, OutputFormatText:
		if !report.Parseable {
			fmt.Fprintf(p.writer, "Envelope: MALFORMED (%s)\n", report.ParseError)
			return nil
		}
		env := report.Envelope
		fmt.Fprintln(p.writer, "Envelope:")
		fmt.Fprintf(p.writer, "  Algorithm:   %s (%s)\n", env.Algorithm, env.Scheme)
		if env.KeyName != "" {
			fmt.Fprintf(p.writer, "  Key:         %s (v%d)\n", env.KeyName, env.KeyVersion)
		}
		fmt.Fprintf(p.writer, "  Fingerprint: %s\n", env.Fingerprint)
		if !env.CreatedAt.IsZero() {
			fmt.Fprintf(p.writer, "  Created:     %s\n", env.CreatedAt.Format(time.RFC3339))
		}
		if env.ExpiresAt != nil {
			fmt.Fprintf(p.writer, "  Expires:     %s\n", env.ExpiresAt.Format(time.RFC3339))
		}
		if report.Expired {
			fmt.Fprintln(p.writer, "  Status:      EXPIRED")
		}
		if env.Detached {
			fmt.Fprintf(p.writer, "  Detached:    yes (data hash %s)\n", shortFingerprint(env.DataHash))
		}
		for k, v := range env.Metadata {
			fmt.Fprintf(p.writer, "  Meta:        %s=%s\n", k, v)
		}
		if env.PublicKeyPEM != "" {
			fmt.Fprintln(p.writer, "  Public key:  embedded")
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintBatchReport prints the final accounting for a batch job
func (p *Printer) PrintBatchReport(report *batch.Report) error {
	switch p.format {
	case OutputFormatJSON:
		results := make([]map[string]interface{}, len(report.Results))
		for i, item := range report.Results {
			entry := map[string]interface{}{
				"id":       item.ID,
				"state":    item.State,
				"attempts": item.Attempts,
			}
			if item.Err != nil {
				entry["error"] = item.Err.Error()
			}
			if item.Reason != "" {
				entry["reason"] = item.Reason.String()
			}
			results[i] = entry
		}
		return p.printJSON(map[string]interface{}{
			"job_id":    report.JobID,
			"kind":      report.Kind,
			"status":    report.Status,
			"succeeded": report.SuccessCount,
			"failed":    report.FailureCount,
			"cancelled": report.CancelledCount,
			"duration":  report.Duration.String(),
			"results":   results,
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-30s %-12s %-8s %s\n", "ITEM", "STATE", "TRIES", "ERROR")
		fmt.Fprintln(p.writer, strings.Repeat("-", 80))
		for _, item := range report.Results {
			detail := ""
			if item.Err != nil {
				detail = item.Err.Error()
			}
			fmt.Fprintf(p.writer, "%-30s %-12s %-8d %s\n", item.ID, item.State, item.Attempts, detail)
		}
		fmt.Fprintf(p.writer, "\n%s %s: %d succeeded, %d failed, %d cancelled in %s\n",
			report.Kind, report.Status, report.SuccessCount, report.FailureCount,
			report.CancelledCount, report.Duration.Round(time.Millisecond))
		return nil
	case OutputFormatText:
		for _, item := range report.Results {
			if item.Err != nil {
				fmt.Fprintf(p.writer, "  %s: %s (%v)\n", item.ID, item.State, item.Err)
			} else {
				fmt.Fprintf(p.writer, "  %s: %s\n", item.ID, item.State)
			}
		}
		fmt.Fprintf(p.writer, "%s %s: %d succeeded, %d failed, %d cancelled in %s\n",
			report.Kind, report.Status, report.SuccessCount, report.FailureCount,
			report.CancelledCount, report.Duration.Round(time.Millisecond))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintWatcherList prints the registered filesystem watchers
func (p *Printer) PrintWatcherList(infos []watcher.Info) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"watchers": infos,
		})
	case OutputFormatTable:
		if len(infos) == 0 {
			fmt.Fprintln(p.writer, "No watchers running")
			return nil
		}
		fmt.Fprintf(p.writer, "%-38s %-10s %-24s %-8s %-8s %s\n",
			"ID", "STATE", "KEY", "SIGNED", "FAILED", "DIRECTORY")
		fmt.Fprintln(p.writer, strings.Repeat("-", 110))
		for _, info := range infos {
			fmt.Fprintf(p.writer, "%-38s %-10s %-24s %-8d %-8d %s\n",
				info.ID, info.State, info.KeyName, info.Stats.Signed, info.Stats.Failed,
				info.Directory)
		}
		return nil
	case OutputFormatText:
		if len(infos) == 0 {
			fmt.Fprintln(p.writer, "No watchers running")
			return nil
		}
		fmt.Fprintln(p.writer, "Watchers:")
		for _, info := range infos {
			fmt.Fprintf(p.writer, "  - %s (%s) watching %s with key %s\n",
				info.ID, info.State, info.Directory, info.KeyName)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintWatcherInfo prints a watcher snapshot
func (p *Printer) PrintWatcherInfo(info watcher.Info) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(info)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, "Watcher:")
		fmt.Fprintf(p.writer, "  ID:        %s\n", info.ID)
		fmt.Fprintf(p.writer, "  State:     %s\n", info.State)
		fmt.Fprintf(p.writer, "  Directory: %s\n", info.Directory)
		fmt.Fprintf(p.writer, "  Key:       %s\n", info.KeyName)
		fmt.Fprintf(p.writer, "  Recursive: %t\n", info.Recursive)
		if len(info.Patterns) > 0 {
			fmt.Fprintf(p.writer, "  Patterns:  %s\n", strings.Join(info.Patterns, ", "))
		}
		fmt.Fprintf(p.writer, "  Signed:    %d\n", info.Stats.Signed)
		fmt.Fprintf(p.writer, "  Failed:    %d\n", info.Stats.Failed)
		fmt.Fprintf(p.writer, "  Dropped:   %d\n", info.Stats.Dropped)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSessionList prints multi-party signing sessions
func (p *Printer) PrintSessionList(sessions []*multisig.Session) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"sessions": sessions,
		})
	case OutputFormatTable:
		if len(sessions) == 0 {
			fmt.Fprintln(p.writer, "No sessions found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-38s %-10s %-10s %-20s %s\n",
			"ID", "STATE", "PROGRESS", "CREATED", "DESCRIPTION")
		fmt.Fprintln(p.writer, strings.Repeat("-", 100))
		for _, session := range sessions {
			fmt.Fprintf(p.writer, "%-38s %-10s %-10s %-20s %s\n",
				session.ID, session.Status,
				fmt.Sprintf("%d/%d", session.Collected, session.Threshold),
				session.CreatedAt.Format(time.RFC3339), session.Description)
		}
		return nil
	case OutputFormatText:
		if len(sessions) == 0 {
			fmt.Fprintln(p.writer, "No sessions found")
			return nil
		}
		fmt.Fprintln(p.writer, "Sessions:")
		for _, session := range sessions {
			fmt.Fprintf(p.writer, "  - %s (%s, %d/%d signatures)\n",
				session.ID, session.Status, session.Collected, session.Threshold)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSession prints a multi-party signing session
func (p *Printer) PrintSession(session *multisig.Session) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(session)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, "Session:")
		fmt.Fprintf(p.writer, "  ID:           %s\n", session.ID)
		if session.Description != "" {
			fmt.Fprintf(p.writer, "  Description:  %s\n", session.Description)
		}
		fmt.Fprintf(p.writer, "  Status:       %s\n", session.Status)
		fmt.Fprintf(p.writer, "  Threshold:    %d of %d participants\n",
			session.Threshold, len(session.Participants))
		fmt.Fprintf(p.writer, "  Collected:    %d\n", session.Collected)
		if len(session.Pending) > 0 {
			fmt.Fprintf(p.writer, "  Pending:      %s\n", strings.Join(session.Pending, ", "))
		}
		fmt.Fprintf(p.writer, "  Created:      %s\n", session.CreatedAt.Format(time.RFC3339))
		if session.ExpiresAt != nil {
			fmt.Fprintf(p.writer, "  Expires:      %s\n", session.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintMultiSigVerify prints a threshold verification verdict
func (p *Printer) PrintMultiSigVerify(result *multisig.VerifyResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(result)
	case OutputFormatTable, OutputFormatText:
		verdict := "INVALID"
		if result.Valid {
			verdict = "VALID"
		}
		fmt.Fprintf(p.writer, "Multi-signature: %s (%d of %d verified, threshold %d)\n",
			verdict, len(result.Verified), result.Collected, result.Threshold)
		for _, sig := range result.Verified {
			fmt.Fprintf(p.writer, "  ok   %s (%s)\n", sig.KeyName, sig.Algorithm)
		}
		for _, sig := range result.Failed {
			fmt.Fprintf(p.writer, "  FAIL %s: %s\n", sig.KeyName, sig.Reason)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// shortFingerprint abbreviates a fingerprint for table output.
func shortFingerprint(fp string) string {
	if len(fp) <= 19 {
		return fp
	}
	return fp[:16] + "..."
}
