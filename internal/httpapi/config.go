package httpapi

// maxBodyBytes bounds every request body (prompts, JSON lists, image uploads).
var maxBodyBytes int64 = 32 << 20

// SetMaxBodyBytes configures the maximum request body size. Non-positive
// values restore the 32 MiB default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 32 << 20
		return
	}
	maxBodyBytes = n
}

// streamEndMarker is the body returned with the end-of-stream fragment.
var streamEndMarker string

// SetStreamEndMarker sets the end-of-stream body. Empty by default; old clients
// that compare the body against a marker string can have it back here.
func SetStreamEndMarker(s string) { streamEndMarker = s }

// corsOrigins lists allowed origins. Empty or containing "*" echoes any origin.
var corsOrigins []string

// SetCORSOrigins configures which request origins are echoed back.
func SetCORSOrigins(origins []string) {
	corsOrigins = append([]string(nil), origins...)
}

func originAllowed(origin string) bool {
	if len(corsOrigins) == 0 {
		return true
	}
	for _, o := range corsOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
