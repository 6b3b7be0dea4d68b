// Copyright (c) 2025 ToeiRei
// Archiver - remote log archival over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ConnectionError reports that a host could not be reached or authenticated.
// It is recoverable: the host is skipped and the run continues.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransferError reports a failed remote operation (list, fetch or delete).
// Recoverable: the action or host is skipped and the run continues.
type TransferError struct {
	Op   string // "list", "fetch" or "delete"
	Host string
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s:%s: %v", e.Op, e.Host, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether err looks like an SSH authentication
// failure, as opposed to a network-level problem. The ssh package exposes
// no typed error for this, so the message is inspected the same way a
// shell user would read it.
func IsAuthFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
