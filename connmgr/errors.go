/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package connmgr

import (
	"fmt"

	liberr "github.com/nabbar/golib/errors"
)

// Error codes for the connection manager.
// These errors are registered with the golib/errors package for consistent
// error handling.
const (
	ErrorParamEmpty         liberr.CodeError = iota + liberr.MinAvailable // At least one given parameter is empty
	ErrorParamInvalid                                                     // At least one given parameter is invalid
	ErrorValidatorError                                                   // Configuration validation failed
	ErrorManagerShutdown                                                  // Operation submitted after shutdown
	ErrorManagerNotRunning                                                // Operation submitted before the manager was started
	ErrorTransactionUnknown                                               // Transaction is not known to the manager
	ErrorConnectionUnknown                                                // Connection is not owned by the manager
	ErrorTransactionCancel                                                // Transaction canceled by caller
	ErrorTransportFailed                                                  // Transport establishment failed
	ErrorUpgradeFailed                                                    // Upgrade hand-off could not detach a live transport
)

func init() {
	if liberr.ExistInMapMessage(ErrorParamEmpty) {
		panic(fmt.Errorf("error code collision with package connmgr"))
	}
	liberr.RegisterIdFctMessage(ErrorParamEmpty, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorParamEmpty:
		return "at least one given parameters is empty"
	case ErrorParamInvalid:
		return "at least one given parameters is invalid"
	case ErrorValidatorError:
		return "config seems to be invalid"
	case ErrorManagerShutdown:
		return "connection manager is shut down"
	case ErrorManagerNotRunning:
		return "connection manager is not running"
	case ErrorTransactionUnknown:
		return "transaction is not managed by this connection manager"
	case ErrorConnectionUnknown:
		return "connection is not owned by this connection manager"
	case ErrorTransactionCancel:
		return "transaction has been canceled"
	case ErrorTransportFailed:
		return "cannot establish transport for transaction"
	case ErrorUpgradeFailed:
		return "cannot detach transport for upgrade listener"
	}

	return liberr.NullMessage
}
