package util

// ValidNPI reports whether a 10-digit NPI passes the Luhn check with the
// standard 80840 card-issuer prefix.
func ValidNPI(npi string) bool {
	if len(npi) != 10 {
		return false
	}
	for _, r := range npi {
		if r < '0' || r > '9' {
			return false
		}
	}

	full := "80840" + npi[:9]
	check := int(npi[9] - '0')

	total := 0
	for i := 0; i < len(full); i++ {
		digit := int(full[len(full)-1-i] - '0')
		if i%2 == 0 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		total += digit
	}

	return (10-total%10)%10 == check
}
