package gateway

import "time"

// selectCredential picks the credential slot for the next request, or -1
// when every slot is cooling down. Must be called with the registry
// mutex held.
//
// A single-credential provider always uses that credential. With
// multiple credentials each non-rate-limited slot is scored
//
//	(requests in the last 60s * weight) - (recency bonus + success bonus)
//
// floored at zero, and the lowest score wins with ties broken by slot
// order. A rate-limited slot is skipped unless 60 seconds have passed
// since its last use, in which case the rate-limit marker is cleared
// before scoring.
func (p *provider) selectCredential(now time.Time) int {
	switch len(p.creds) {
	case 0:
		return -1
	case 1:
		return 0
	}

	best := -1
	bestScore := 0.0

	for i, c := range p.creds {
		if c.rateLimited {
			if c.lastUsed.IsZero() || now.Sub(c.lastUsed) >= rateLimitCooldown {
				c.rateLimited = false
			} else {
				continue
			}
		}

		score := credentialScore(c, now)
		if best == -1 || score < bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

// credentialScore computes the load score for one slot. Lower is better.
func credentialScore(c *credential, now time.Time) float64 {
	load := float64(c.pruneWindow(now)) * c.weight

	recency := 1.0
	if !c.lastUsed.IsZero() {
		recency = now.Sub(c.lastUsed).Seconds() / windowSpan.Seconds()
		if recency > 1.0 {
			recency = 1.0
		}
	}

	score := load - (recency + c.successRate())
	if score < 0 {
		score = 0
	}
	return score
}

// recordCredentialSuccess applies the success reputation update: weight
// decays toward the floor and the rate-limit marker clears.
func recordCredentialSuccess(c *credential) {
	c.successes++
	c.weight *= successWeightFactor
	if c.weight < minWeight {
		c.weight = minWeight
	}
	c.rateLimited = false
}

// recordCredentialFailure applies the failure reputation update: weight
// grows toward the cap.
func recordCredentialFailure(c *credential) {
	c.failures++
	c.weight *= failureWeightFactor
	if c.weight > maxWeight {
		c.weight = maxWeight
	}
}

// markRateLimited flags the slot and pins its weight at the cap so it
// sorts last until the cooldown clears.
func markRateLimited(c *credential) {
	c.rateLimited = true
	c.weight = maxWeight
}
