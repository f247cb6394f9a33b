package install

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const etaCalculating = "calculating..."

var (
	percentPattern       = regexp.MustCompile(`(\d{1,3}(?:\.\d{1,2})?)%`)
	downloadSpeedPattern = regexp.MustCompile(`(\d+\.?\d*)\s*(KB|MB|GB)/s`)
	checkPattern         = regexp.MustCompile(`(?:to|ir)-ch(?:ec)?k=(\d+)/(\d+)`)
	transferSpeedPattern = regexp.MustCompile(`(\d+\.?\d*[kKMG]?B/s)`)
	transferBytesPattern = regexp.MustCompile(`^([\d,]+)\s+\d{1,3}%`)
)

// ParsePercent extracts the first "NN%" or "NN.NN%" token in a downloader
// progress line.
func ParsePercent(line string) (float64, bool) {
	match := percentPattern.FindStringSubmatch(line)
	if len(match) != 2 {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil || value > 100 {
		return 0, false
	}
	return value, true
}

// ParseSpeed extracts a "12.5 MB/s" style throughput token, normalised to
// "<number> <unit>/s".
func ParseSpeed(line string) (string, bool) {
	match := downloadSpeedPattern.FindStringSubmatch(line)
	if len(match) != 3 {
		return "", false
	}
	return fmt.Sprintf("%s %s/s", match[1], match[2]), true
}

type TransferProgress struct {
	Remaining int
	Total     int
	HasCount  bool
	Speed     string
	Bytes     int64
	HasBytes  bool
}

// Done returns the number of files finished so far.
func (p TransferProgress) Done() int {
	if p.Remaining > p.Total {
		return 0
	}
	return p.Total - p.Remaining
}

// ParseTransferLine reads an rsync progress line such as
//
//	1,238,099  45%   10.52MB/s    0:00:12 (xfr#12, to-chk=88/100)
//
// The remaining/total token comes from --info=progress2 (to-chk, ir-chk) or
// from --progress on rsync older than 3.1 (to-check).
func ParseTransferLine(line string) (TransferProgress, bool) {
	var progress TransferProgress
	found := false

	if match := checkPattern.FindStringSubmatch(line); len(match) == 3 {
		remaining, errRemaining := strconv.Atoi(match[1])
		total, errTotal := strconv.Atoi(match[2])
		if errRemaining == nil && errTotal == nil {
			progress.Remaining = remaining
			progress.Total = total
			progress.HasCount = true
			found = true
		}
	}
	if match := transferSpeedPattern.FindStringSubmatch(line); len(match) == 2 {
		progress.Speed = match[1]
		found = true
	}
	if match := transferBytesPattern.FindStringSubmatch(strings.TrimSpace(line)); len(match) == 2 {
		if bytes, err := strconv.ParseInt(strings.ReplaceAll(match[1], ",", ""), 10, 64); err == nil {
			progress.Bytes = bytes
			progress.HasBytes = true
			found = true
		}
	}
	return progress, found
}

// OverallPercent weights the current depot into the whole download:
// ((completed*100) + depotPercent) / total. Remote installs reserve the upper
// half of the bar for the transfer, so the download is scaled into 0-50.
func OverallPercent(completed int, total int, depotPercent float64, remote bool) float64 {
	if total <= 0 {
		return 0
	}
	overall := (float64(completed)*100 + depotPercent) / float64(total)
	if overall > 100 {
		overall = 100
	}
	if remote {
		return overall * 0.5
	}
	return overall
}

// TransferPercent maps done/total files into the 50-100 band used by the
// transfer phase of a remote install.
func TransferPercent(done int, total int) float64 {
	if total <= 0 {
		return 100
	}
	fraction := float64(done) / float64(total)
	if fraction > 1 {
		fraction = 1
	}
	return 50 + fraction*50
}

// FormatETA estimates time left from elapsed time and percent complete:
// remaining = elapsed*(100/percent) - elapsed. Below 0.5% or within the
// first second the estimate is too noisy and "calculating..." is returned.
func FormatETA(elapsed time.Duration, percent float64) string {
	seconds := elapsed.Seconds()
	if percent <= 0.5 || seconds <= 1 {
		return etaCalculating
	}
	remaining := seconds*100/percent - seconds
	switch {
	case remaining > 3600:
		return fmt.Sprintf("%dh %dm", int(remaining/3600), int(math.Mod(remaining, 3600)/60))
	case remaining > 60:
		return fmt.Sprintf("%dm %ds", int(remaining/60), int(math.Mod(remaining, 60)))
	default:
		return fmt.Sprintf("%ds", int(math.Max(1, math.Round(remaining))))
	}
}

// DescribeTransferExit maps an rsync exit status to a cause a user can act on.
func DescribeTransferExit(code int, host string, missingSSHPass bool) string {
	switch code {
	case 1:
		if missingSSHPass {
			return "rsync syntax/usage error or sshpass issue. Install sshpass or configure a key file."
		}
		return "rsync syntax/usage error or sshpass issue. Check SSH connection manually."
	case 2:
		return "rsync protocol incompatibility"
	case 3:
		return "Errors selecting input/output files"
	case 5:
		return "rsync: error starting client-server protocol"
	case 10:
		return "rsync: connection unexpectedly closed"
	case 11:
		return "rsync: error in file I/O"
	case 12:
		return "rsync: problem with rsync protocol data stream"
	case 23:
		return "rsync: partial transfer (some files transferred)"
	case 24:
		return "rsync: partial transfer (vanished source files)"
	case 255:
		return fmt.Sprintf("SSH connection failed. Check: 1) Deck is on, 2) SSH enabled, 3) IP correct (%s)", host)
	default:
		return fmt.Sprintf("rsync error code %d", code)
	}
}
