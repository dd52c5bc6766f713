// Package generator produces deterministic synthetic claim datasets with
// injected fraud patterns for the scoring pipeline to find.
package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Config controls dataset shape. The defaults reproduce the reference
// dataset: 5000 claims over 4000 policies, 3200 claimants and 2200
// addresses, with 30 sharing rings and 25 velocity clusters.
type Config struct {
	Seed int64

	Claims    int
	Policies  int
	Addresses int
	Claimants int

	// Rings is the number of reused bank/address/device groups.
	Rings int

	// VelocityClusters is the number of injected same-window claim bursts;
	// each cluster holds 3 to 6 claims.
	VelocityClusters int

	// Now anchors all generated dates. Zero means time.Now().
	Now time.Time
}

// DefaultConfig returns the reference dataset shape.
func DefaultConfig() Config {
	return Config{
		Seed:             42,
		Claims:           5000,
		Policies:         4000,
		Addresses:        2200,
		Claimants:        3200,
		Rings:            30,
		VelocityClusters: 25,
	}
}

// Result is a generated dataset plus the injection ground truth. FraudLabels
// marks the claims that were given deliberate fraud patterns; the benchmark
// compares scoring output against it.
type Result struct {
	Dataset     *domain.Dataset
	FraudLabels map[string]bool
}

// Generator produces datasets from a seeded source. Not safe for concurrent
// use; create one per dataset.
type Generator struct {
	cfg Config
	rng *rand.Rand
	now time.Time
}

// New creates a generator. The same config always yields the same dataset.
func New(cfg Config) *Generator {
	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = domain.Date(now.Year(), now.Month(), now.Day())
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		now: now,
	}
}

var (
	products     = []domain.Product{domain.ProductAuto, domain.ProductHome, domain.ProductTravel}
	productSplit = map[domain.Product]float64{domain.ProductAuto: 0.45, domain.ProductHome: 0.35, domain.ProductTravel: 0.20}
	fraudRates   = map[domain.Product]float64{domain.ProductAuto: 0.08, domain.ProductHome: 0.07, domain.ProductTravel: 0.06}
	regions      = []string{"UK", "FR", "ES", "IT", "US"}

	lossTypes = map[domain.Product][]domain.LossType{
		domain.ProductAuto:   {domain.LossAccident, domain.LossTheft, domain.LossVandalism, domain.LossWeather},
		domain.ProductHome:   {domain.LossFire, domain.LossWater, domain.LossTheft, domain.LossWeather},
		domain.ProductTravel: {domain.LossCancellation, domain.LossBaggage, domain.LossTheft, domain.LossAccident},
	}

	amountRanges = map[domain.Product][2]int{
		domain.ProductAuto:   {300, 12000},
		domain.ProductHome:   {500, 25000},
		domain.ProductTravel: {100, 6000},
	}

	// Injected amounts sit just below the round thresholds the amount
	// rules watch.
	injectionThresholds = []float64{4999, 9999, 14999, 19999}

	firstNames = []string{
		"Oliver", "Amelia", "George", "Isla", "Noah", "Ava", "Arthur", "Freya",
		"Leo", "Ivy", "Oscar", "Willow", "Harry", "Grace", "Archie", "Lily",
		"Henry", "Sofia", "Jack", "Mia", "Thomas", "Ella", "Lucas", "Evie",
	}
	lastNames = []string{
		"Smith", "Jones", "Taylor", "Brown", "Williams", "Wilson", "Johnson",
		"Davies", "Patel", "Robinson", "Wright", "Thompson", "Evans", "Walker",
		"White", "Hughes", "Green", "Hall", "Lewis", "Harris", "Clarke", "Khan",
	}
	cities = []string{
		"London", "Manchester", "Bristol", "Leeds", "Lyon", "Marseille",
		"Madrid", "Valencia", "Milan", "Turin", "Chicago", "Denver", "Austin",
	}
	streets = []string{
		"High Street", "Station Road", "Church Lane", "Victoria Road",
		"Mill Lane", "Park Avenue", "Queensway", "The Green", "Kings Road",
		"Orchard Close", "Elm Grove", "Bridge Street",
	}
)

// Generate builds the full dataset. Deterministic for a given config.
func (g *Generator) Generate() *Result {
	addresses := g.addresses()
	policies := g.policies()

	ringBanks := make([]string, g.cfg.Rings)
	ringDevices := make([]string, g.cfg.Rings)
	for i := range ringBanks {
		ringBanks[i] = g.bankHash()
		ringDevices[i] = g.id("DEV")
	}
	ringAddresses := make([]string, g.cfg.Rings)
	for i := range ringAddresses {
		ringAddresses[i] = addresses[g.rng.Intn(len(addresses))].ID
	}

	claimants := g.claimants(addresses, ringBanks, ringAddresses, ringDevices)

	byProduct := make(map[domain.Product][]*domain.Policy)
	for _, p := range policies {
		byProduct[p.Product] = append(byProduct[p.Product], p)
	}

	labels := make(map[string]bool)
	var claims []*domain.Claim

	// Product targets; TRAVEL absorbs the rounding remainder.
	autoN := int(float64(g.cfg.Claims)*productSplit[domain.ProductAuto] + 0.5)
	homeN := int(float64(g.cfg.Claims)*productSplit[domain.ProductHome] + 0.5)
	targets := map[domain.Product]int{
		domain.ProductAuto:   autoN,
		domain.ProductHome:   homeN,
		domain.ProductTravel: g.cfg.Claims - autoN - homeN,
	}

	for _, product := range products {
		total := targets[product]
		fraudN := int(float64(total)*fraudRates[product] + 0.5)
		for i := 0; i < total-fraudN; i++ {
			claims = append(claims, g.claim(product, false, byProduct[product], claimants, labels))
		}
		for i := 0; i < fraudN; i++ {
			claims = append(claims, g.claim(product, true, byProduct[product], claimants, labels))
		}
	}

	claims = append(claims, g.velocityClusters(byProduct, claimants, ringBanks, ringAddresses, ringDevices, labels)...)

	return &Result{
		Dataset: &domain.Dataset{
			Addresses: addresses,
			Policies:  policies,
			Claimants: claimants,
			Claims:    claims,
		},
		FraudLabels: labels,
	}
}

func (g *Generator) addresses() []*domain.Address {
	out := make([]*domain.Address, g.cfg.Addresses)
	for i := range out {
		out[i] = &domain.Address{
			ID:       g.id("ADR"),
			Line1:    fmt.Sprintf("%d %s", 1+g.rng.Intn(200), streets[g.rng.Intn(len(streets))]),
			City:     cities[g.rng.Intn(len(cities))],
			Postcode: fmt.Sprintf("%c%c%d %d%c%c", g.letter(), g.letter(), 1+g.rng.Intn(20), 1+g.rng.Intn(9), g.letter(), g.letter()),
			Lat:      -90 + g.rng.Float64()*180,
			Lon:      -180 + g.rng.Float64()*360,
		}
	}
	return out
}

func (g *Generator) policies() []*domain.Policy {
	out := make([]*domain.Policy, g.cfg.Policies)
	for i := range out {
		inception := g.now.AddDate(0, 0, -(1 + g.rng.Intn(730)))
		out[i] = &domain.Policy{
			ID:            g.id("POL"),
			InceptionDate: inception,
			ExpiryDate:    inception.AddDate(0, 0, 180+g.rng.Intn(541)),
			Product:       g.pickProduct(),
			Region:        regions[g.rng.Intn(len(regions))],
		}
	}
	return out
}

func (g *Generator) claimants(addresses []*domain.Address, ringBanks, ringAddresses, ringDevices []string) []*domain.Claimant {
	out := make([]*domain.Claimant, g.cfg.Claimants)
	for i := range out {
		first := firstNames[g.rng.Intn(len(firstNames))]
		last := lastNames[g.rng.Intn(len(lastNames))]
		email := fmt.Sprintf("%s.%s%d@example.com", first, last, g.rng.Intn(1000))
		phone := fmt.Sprintf("+44 7%09d", g.rng.Intn(1_000_000_000))

		addr := addresses[g.rng.Intn(len(addresses))].ID
		if g.rng.Float64() < 0.09 {
			addr = ringAddresses[g.rng.Intn(len(ringAddresses))]
		}
		bank := g.bankHash()
		if g.rng.Float64() < 0.1 {
			bank = ringBanks[g.rng.Intn(len(ringBanks))]
		}
		device := g.id("DEV")
		if g.rng.Float64() < 0.1 {
			device = ringDevices[g.rng.Intn(len(ringDevices))]
		}

		out[i] = &domain.Claimant{
			ID:              g.id("CLT"),
			Name:            first + " " + last,
			EmailHash:       hashString(email),
			PhoneHash:       hashString(phone),
			AddressID:       addr,
			BankAccountHash: bank,
			DeviceID:        device,
		}
	}
	return out
}

// claim builds one claim. Fraudulent claims get one or more injected
// patterns: late reporting, an inactive policy window, an inception spike or
// a just-below-threshold amount. Legitimate claims carry a small background
// rate of threshold-shaped amounts as noise.
func (g *Generator) claim(product domain.Product, isFraud bool, policies []*domain.Policy, claimants []*domain.Claimant, labels map[string]bool) *domain.Claim {
	pol := policies[g.rng.Intn(len(policies))]
	party := claimants[g.rng.Intn(len(claimants))]
	lossType := lossTypes[product][g.rng.Intn(len(lossTypes[product]))]

	lossDate := g.dateBetween(pol.InceptionDate, pol.ExpiryDate)
	reportDate := lossDate.AddDate(0, 0, g.rng.Intn(8))

	var late, inactive, spike, suspicious bool
	if isFraud {
		late = g.rng.Float64() < 0.35
		inactive = g.rng.Float64() < 0.25
		spike = g.rng.Float64() < 0.25
		suspicious = g.rng.Float64() < 0.35
		if !late && !inactive && !spike && !suspicious {
			late = true
		}
	} else {
		suspicious = g.rng.Float64() < 0.03
	}

	if inactive {
		lossDate = pol.InceptionDate.AddDate(0, 0, -(1 + g.rng.Intn(120)))
		reportDate = lossDate.AddDate(0, 0, 1+g.rng.Intn(7))
	} else if spike {
		lossDate = pol.InceptionDate.AddDate(0, 0, g.rng.Intn(4))
		reportDate = lossDate.AddDate(0, 0, g.rng.Intn(3))
	}
	if late {
		reportDate = lossDate.AddDate(0, 0, 31+g.rng.Intn(60))
	}

	amount := g.normalAmount(product, lossType)
	if suspicious {
		amount = g.suspiciousAmount()
	}

	id := g.id("CLM")
	if isFraud {
		labels[id] = true
	}
	return &domain.Claim{
		ID:         id,
		PolicyID:   pol.ID,
		ClaimantID: party.ID,
		LossDate:   lossDate,
		ReportDate: reportDate,
		LossType:   lossType,
		Amount:     amount,
		Status:     g.pickStatus(),
	}
}

// velocityClusters injects bursts of 3 to 6 claims inside one velocity
// window, all routed through a single ring's shared bank, address and
// device. The chosen claimants are mutated to share those keys.
func (g *Generator) velocityClusters(byProduct map[domain.Product][]*domain.Policy, claimants []*domain.Claimant, ringBanks, ringAddresses, ringDevices []string, labels map[string]bool) []*domain.Claim {
	var out []*domain.Claim
	for i := 0; i < g.cfg.VelocityClusters; i++ {
		addr := ringAddresses[g.rng.Intn(len(ringAddresses))]
		dev := ringDevices[g.rng.Intn(len(ringDevices))]
		bank := ringBanks[g.rng.Intn(len(ringBanks))]
		product := products[g.rng.Intn(len(products))]

		windowStart := g.now.AddDate(0, 0, -(20 + g.rng.Intn(101)))
		baseLoss := g.dateBetween(windowStart, g.now.AddDate(0, 0, -14))

		size := 3 + g.rng.Intn(4)
		for j := 0; j < size; j++ {
			party := claimants[g.rng.Intn(len(claimants))]
			party.AddressID = addr
			party.DeviceID = dev
			party.BankAccountHash = bank

			pol := byProduct[product][g.rng.Intn(len(byProduct[product]))]
			lossType := lossTypes[product][g.rng.Intn(len(lossTypes[product]))]
			lossDate := baseLoss.AddDate(0, 0, g.rng.Intn(14))

			id := g.id("CLM")
			labels[id] = true
			out = append(out, &domain.Claim{
				ID:         id,
				PolicyID:   pol.ID,
				ClaimantID: party.ID,
				LossDate:   lossDate,
				ReportDate: lossDate.AddDate(0, 0, g.rng.Intn(6)),
				LossType:   lossType,
				Amount:     g.suspiciousAmount(),
				Status:     domain.StatusNew,
			})
		}
	}
	return out
}

func (g *Generator) pickProduct() domain.Product {
	r := g.rng.Float64()
	if r < productSplit[domain.ProductAuto] {
		return domain.ProductAuto
	}
	if r < productSplit[domain.ProductAuto]+productSplit[domain.ProductHome] {
		return domain.ProductHome
	}
	return domain.ProductTravel
}

func (g *Generator) pickStatus() domain.ClaimStatus {
	statuses := []domain.ClaimStatus{domain.StatusNew, domain.StatusInvestigating, domain.StatusApproved, domain.StatusClosed}
	return statuses[g.rng.Intn(len(statuses))]
}

func (g *Generator) normalAmount(product domain.Product, lossType domain.LossType) float64 {
	lo, hi := amountRanges[product][0], amountRanges[product][1]
	switch lossType {
	case domain.LossCancellation:
		lo, hi = 200, 3000
	case domain.LossBaggage:
		lo, hi = 200, 2500
	}
	return float64(lo + g.rng.Intn(hi-lo+1))
}

func (g *Generator) suspiciousAmount() float64 {
	t := injectionThresholds[g.rng.Intn(len(injectionThresholds))]
	noise := float64(g.rng.Intn(30) - 10)
	amount := t + noise
	if amount < 50 {
		amount = 50
	}
	return amount
}

func (g *Generator) dateBetween(from, to time.Time) time.Time {
	days := domain.DaysBetween(from, to)
	if days <= 0 {
		return from
	}
	return from.AddDate(0, 0, g.rng.Intn(days+1))
}

func (g *Generator) id(prefix string) string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = idAlphabet[g.rng.Intn(len(idAlphabet))]
	}
	return prefix + "-" + string(b)
}

func (g *Generator) letter() byte {
	return idAlphabet[g.rng.Intn(26)]
}

func (g *Generator) bankHash() string {
	iban := fmt.Sprintf("GB%02d%c%c%c%c%014d", g.rng.Intn(100), g.letter(), g.letter(), g.letter(), g.letter(), g.rng.Int63n(100_000_000_000_000))
	return hashString(iban)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
