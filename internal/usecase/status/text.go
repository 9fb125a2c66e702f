package status

import "fmt"

// Performing is the status text for an image search in the named mode.
func Performing(niceName string) string {
	return fmt.Sprintf(performingFmt, niceName)
}
