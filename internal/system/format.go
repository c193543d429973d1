package system

import "fmt"

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count with binary units, e.g. "1.50 KB".
func FormatBytes(b float64) string {
	for _, unit := range byteUnits {
		if b < 1024 {
			return fmt.Sprintf("%.2f %s", b, unit)
		}
		b /= 1024
	}
	return fmt.Sprintf("%.2f PB", b)
}

// FormatSpeed renders a bytes-per-second rate, e.g. "2.00 MB/s".
func FormatSpeed(bytesPerSec float64) string {
	return FormatBytes(bytesPerSec) + "/s"
}
