package stats

type PlotPoint struct {
	Generation int     `json:"generation"`
	Value      float64 `json:"value"`
	Smoothed   float64 `json:"smoothed"`
}

type PlotSeries struct {
	Name   string      `json:"name"`
	Window int         `json:"window"`
	Points []PlotPoint `json:"points"`
}

// Plot holds the per-generation curves a run is usually judged by.
type Plot struct {
	ProportionCooperate PlotSeries `json:"proportion_cooperate"`
	ProportionDefect    PlotSeries `json:"proportion_defect"`
	MeanChatLength      PlotSeries `json:"mean_chat_length"`
}

const DefaultPlotWindow = 10

func BuildPlot(series Series, window int) Plot {
	if window <= 0 {
		window = DefaultPlotWindow
	}
	generations := make([]int, len(series))
	for i, g := range series {
		generations[i] = g.Generation
	}
	return Plot{
		ProportionCooperate: buildPlotSeries("proportion_cooperate", generations, series.ProportionCooperate(), window),
		ProportionDefect:    buildPlotSeries("proportion_defect", generations, series.ProportionDefect(), window),
		MeanChatLength:      buildPlotSeries("mean_chat_length", generations, series.MeanChatLength(), window),
	}
}

func buildPlotSeries(name string, generations []int, values []float64, window int) PlotSeries {
	smoothed := MovingAverage(values, window)
	points := make([]PlotPoint, 0, len(values))
	for i, v := range values {
		points = append(points, PlotPoint{Generation: generations[i], Value: v, Smoothed: smoothed[i]})
	}
	return PlotSeries{Name: name, Window: window, Points: points}
}
