// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package cmd

// SetProcessName is a no-op outside Linux; the daemon cannot attach XDP
// there anyway.
func SetProcessName(string) error {
	return nil
}
