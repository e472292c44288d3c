/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package version

import (
	"fmt"
	"io"
	"time"

	"github.com/bsd-hacker/qmanager/internal/wire"
)

const (
	MajorVersion int = 1
	MinorVersion int = 0
	PointVersion int = 0
)

var (
	BuildDate time.Time = time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
)

// PrintVersion reports the daemon/client release and the wire protocol
// version it speaks, so a mismatched qmanagerctl build is easy to spot
// against a running qmanagerd.
func PrintVersion(wtr io.Writer) {
	fmt.Fprintf(wtr, "Version:\t%d.%d.%d\n", MajorVersion, MinorVersion, PointVersion)
	fmt.Fprintf(wtr, "BuildDate:\t%s\n", BuildDate.Format(`2006-01-02 15:04:05`))
	fmt.Fprintf(wtr, "Protocol:\t%d\n", wire.ProtocolVersion)
}
