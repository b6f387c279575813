package simulation

// Props describes one of the standard special-purpose populations.
type Props struct {
	PopSize     int
	PopInfected int
	NDays       int
	// Contacts is the mean daily contact count on the random layer.
	Contacts float64
	Beta     float64
	// MinCourse is the shortest disease course, in days, for
	// high-transmission runs.
	MinCourse float64
}

// Standard special-purpose populations.
var (
	// Microsim is a population small enough to reason about by hand.
	Microsim = Props{PopSize: 10, PopInfected: 1, Contacts: 2, NDays: 10}

	// HighTransmission spreads through most of a small population within a
	// month.
	HighTransmission = Props{
		PopSize: 500, PopInfected: 10, NDays: 30, Contacts: 3, Beta: 0.4,
		MinCourse: 10,
	}
)

// MortalityProps describes a high case-fatality population.
type MortalityProps struct {
	PopSize    int
	CFRByAge   bool
	DefaultCFR float64
	TimeToDie  float64
}

// HighMortality kills a fifth of those infected, independent of age.
var HighMortality = MortalityProps{PopSize: 1000, CFRByAge: false, DefaultCFR: 0.2, TimeToDie: 6}
