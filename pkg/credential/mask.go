package credential

// Mask transforms secret into "prefix...suffix" so diagnostics can
// reference which credential was used without ever printing it in full
// (spec.md §4.J: "Credentials are never written to logs; a masking
// helper transforms known secret formats into prefix...suffix before
// any diagnostic emission").
func Mask(secret string) string {
	const visible = 4
	if len(secret) <= visible*2 {
		if len(secret) == 0 {
			return ""
		}
		return secret[:1] + "..."
	}
	return secret[:visible] + "..." + secret[len(secret)-visible:]
}
