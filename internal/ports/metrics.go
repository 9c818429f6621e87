package ports

// Metrics recibe las observaciones del engine. Todas las llamadas son baratas y no bloquean.
type Metrics interface {
	Tick()
	Decision(outcome string)
	Probability(p float64)
	Edge(side string, edge float64)
	Volatility(perMin float64)
	Imbalance(obi float64)
	OpenPosition(open bool)
	PositionClosed(status string, pnl float64)
	QueueDepth(n int)
	EventWritten(ok bool)
	ConfigReload(ok bool)
	Redemption(ok bool)
	FeedMessage(kind string)
}

// NopMetrics descarta todas las observaciones.
type NopMetrics struct{}

func (NopMetrics) Tick() {}
func (NopMetrics) Decision(string) {}
func (NopMetrics) Probability(float64) {}
func (NopMetrics) Edge(string, float64) {}
func (NopMetrics) Volatility(float64) {}
func (NopMetrics) Imbalance(float64) {}
func (NopMetrics) OpenPosition(bool) {}
func (NopMetrics) PositionClosed(string, float64) {}
func (NopMetrics) QueueDepth(int) {}
func (NopMetrics) EventWritten(bool) {}
func (NopMetrics) ConfigReload(bool) {}
func (NopMetrics) Redemption(bool) {}
func (NopMetrics) FeedMessage(string) {}
