package application

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	datasetdomain "segmentation/internal/dataset/domain"
	"segmentation/internal/segmentation/clustering"
	segdomain "segmentation/internal/segmentation/domain"
	shared "segmentation/internal/shared/domain"
)

// PlotClusterDistribution proportion de clients par segment
func (v *Visualizer) PlotClusterDistribution(profiles []segdomain.ClusterProfile) (string, error) {
	if len(profiles) == 0 {
		return "", shared.NewInvalidParameter("profiles", "aucun profil à tracer")
	}
	p := plot.New()
	p.Title.Text = "Distribution des Segments Clients"
	p.X.Label.Text = "Segment"
	p.Y.Label.Text = "Proportion (%)"

	names := make([]string, len(profiles))
	for i, prof := range profiles {
		names[i] = prof.Label
		values := make(plotter.Values, len(profiles))
		values[i] = prof.Percentage
		bar, err := plotter.NewBarChart(values, vg.Points(30))
		if err != nil {
			return "", err
		}
		bar.Color = v.color(prof.ClusterID)
		bar.LineStyle.Width = 0
		p.Add(bar)

		lbl, err := plotter.NewLabels(plotter.XYLabels{
			XYs:    plotter.XYs{{X: float64(i), Y: prof.Percentage}},
			Labels: []string{fmt.Sprintf("%.1f%%", prof.Percentage)},
		})
		if err != nil {
			return "", err
		}
		p.Add(lbl)
	}
	p.NominalX(names...)
	p.Y.Min = 0
	return v.save(p, "cluster_distribution.png")
}

// PlotFeatureImportance carte de chaleur segment × feature (écart-type intra-cluster)
func (v *Visualizer) PlotFeatureImportance(importance []segdomain.FeatureImportance, labels map[int]string) (string, error) {
	if len(importance) == 0 {
		return "", shared.NewInvalidParameter("importance", "aucune importance à tracer")
	}
	features := make([]string, len(importance[0].Features))
	for i, fw := range importance[0].Features {
		features[i] = fw.Feature
	}
	// Ordre de colonnes stable d'un cluster à l'autre
	sort.Strings(features)

	rows := make([]string, len(importance))
	z := make([][]float64, len(importance))
	for r, fi := range importance {
		rows[r] = segmentLabel(labels, fi.ClusterID)
		byName := make(map[string]float64, len(fi.Features))
		for _, fw := range fi.Features {
			byName[fw.Feature] = fw.Std
		}
		z[r] = make([]float64, len(features))
		for c, f := range features {
			z[r][c] = byName[f]
		}
	}

	p, err := heatmap(z, features, rows, "%.2f")
	if err != nil {
		return "", err
	}
	p.Title.Text = "Importance des Features par Segment"
	p.X.Label.Text = "Features"
	p.Y.Label.Text = "Segment"
	return v.save(p, "feature_importance.png")
}

// PlotClusterCenters carte de chaleur des centres (unités d'origine)
func (v *Visualizer) PlotClusterCenters(centers [][]float64, features []string, labels map[int]string) (string, error) {
	if len(centers) == 0 {
		return "", shared.NewInvalidParameter("centers", "aucun centre à tracer")
	}
	rows := make([]string, len(centers))
	for i := range centers {
		rows[i] = segmentLabel(labels, i)
	}
	p, err := heatmap(centers, features, rows, "%.1f")
	if err != nil {
		return "", err
	}
	p.Title.Text = "Caractéristiques des Centres des Clusters"
	p.X.Label.Text = "Features"
	p.Y.Label.Text = "Segment"
	return v.save(p, "cluster_centers.png")
}

// PlotSegmentProfiles un boxplot par feature: distribution par segment
func (v *Visualizer) PlotSegmentProfiles(frame *datasetdomain.Frame, assignment []int, labels map[int]string, features []string) ([]string, error) {
	if frame == nil || frame.Rows() != len(assignment) {
		return nil, shared.NewInvalidParameter("frame", "tableau non aligné sur l'affectation")
	}
	ids := segdomain.ClusterIDs(assignment)

	var paths []string
	for _, f := range features {
		values, err := frame.Numeric(f)
		if err != nil {
			return nil, err
		}
		groups := make(map[int]plotter.Values)
		for i, c := range assignment {
			if !math.IsNaN(values[i]) {
				groups[c] = append(groups[c], values[i])
			}
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("Distribution de %s par Segment", f)
		p.X.Label.Text = "Segment"
		p.Y.Label.Text = f

		var names []string
		for _, id := range ids {
			vals := groups[id]
			if len(vals) == 0 {
				continue
			}
			box, err := plotter.NewBoxPlot(vg.Points(25), float64(len(names)), vals)
			if err != nil {
				return nil, err
			}
			box.FillColor = v.color(id)
			p.Add(box)
			names = append(names, segmentLabel(labels, id))
		}
		p.NominalX(names...)

		path, err := v.save(p, "segment_profile_"+fileSafe(f)+".png")
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// PlotCorrelationMatrix corrélations de Pearson entre features numériques
func (v *Visualizer) PlotCorrelationMatrix(frame *datasetdomain.Frame, features []string) (string, error) {
	if frame == nil || len(features) < 2 {
		return "", shared.NewInvalidParameter("features", "au moins deux features requises")
	}
	cols := make([][]float64, len(features))
	for j, f := range features {
		values, err := frame.Numeric(f)
		if err != nil {
			return "", err
		}
		cols[j] = values
	}

	z := make([][]float64, len(features))
	for i := range features {
		z[i] = make([]float64, len(features))
		for j := range features {
			z[i][j] = pairCorrelation(cols[i], cols[j])
		}
	}
	p, err := heatmap(z, features, features, "%.2f")
	if err != nil {
		return "", err
	}
	p.Title.Text = "Matrice de Corrélation"
	return v.save(p, "correlation_matrix.png")
}

// PlotClusteringResults projection sur les deux premières composantes principales
func (v *Visualizer) PlotClusteringResults(x [][]float64, assignment []int, labels map[int]string) (string, error) {
	proj, err := ProjectPCA(x)
	if err != nil {
		return "", err
	}
	if len(proj) != len(assignment) {
		return "", shared.NewInvalidParameter("assignment", "%d affectations pour %d lignes", len(assignment), len(proj))
	}

	p := plot.New()
	p.Title.Text = "Visualisation des Clusters (PCA)"
	p.X.Label.Text = "Première Composante Principale"
	p.Y.Label.Text = "Deuxième Composante Principale"

	groups := make(map[int]plotter.XYs)
	for i, c := range assignment {
		groups[c] = append(groups[c], plotter.XY{X: proj[i][0], Y: proj[i][1]})
	}
	for _, id := range segdomain.ClusterIDs(assignment) {
		sc, err := plotter.NewScatter(groups[id])
		if err != nil {
			return "", err
		}
		sc.GlyphStyle.Color = v.color(id)
		sc.GlyphStyle.Radius = vg.Points(2)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add(segmentLabel(labels, id), sc)
	}
	p.Legend.Top = true
	return v.save(p, "clustering_results.png")
}

// PlotCommercialOffers réduction (%) et nombre de services additionnels par segment
func (v *Visualizer) PlotCommercialOffers(offers map[int]segdomain.CommercialOffer, labels map[int]string) (string, error) {
	if len(offers) == 0 {
		return "", shared.NewInvalidParameter("offers", "aucune offre à tracer")
	}
	ids := make(map[int]string, len(offers))
	for id := range offers {
		ids[id] = segmentLabel(labels, id)
	}

	var (
		names      []string
		reductions plotter.Values
		services   plotter.Values
	)
	for _, id := range sortedClusters(ids) {
		o := offers[id]
		names = append(names, ids[id])
		reductions = append(reductions, o.Discount.Percent())
		services = append(services, float64(len(o.Services)))
	}

	p := plot.New()
	p.Title.Text = "Offres Commerciales par Segment"
	p.X.Label.Text = "Segment"
	p.Y.Label.Text = "Nombre"

	w := vg.Points(18)
	red, err := plotter.NewBarChart(reductions, w)
	if err != nil {
		return "", err
	}
	red.Color = v.color(0)
	red.Offset = -w / 2
	svc, err := plotter.NewBarChart(services, w)
	if err != nil {
		return "", err
	}
	svc.Color = v.color(1)
	svc.Offset = w / 2

	p.Add(red, svc)
	p.Legend.Add("Réduction (%)", red)
	p.Legend.Add("Services Additionnels", svc)
	p.Legend.Top = true
	p.NominalX(names...)
	return v.save(p, "commercial_offers.png")
}

// PlotOptimalClusters méthode du coude et silhouette côte à côte
func (v *Visualizer) PlotOptimalClusters(scores []clustering.KScore) (string, error) {
	if len(scores) == 0 {
		return "", shared.NewInvalidParameter("scores", "aucun score à tracer")
	}
	inertia := make(plotter.XYs, len(scores))
	silhouette := make(plotter.XYs, len(scores))
	for i, s := range scores {
		inertia[i] = plotter.XY{X: float64(s.K), Y: s.Inertia}
		silhouette[i] = plotter.XY{X: float64(s.K), Y: s.Silhouette}
	}

	left, err := linePlot(inertia, v.color(1), "Méthode du Coude", "Inertie")
	if err != nil {
		return "", err
	}
	right, err := linePlot(silhouette, v.color(0), "Score de Silhouette", "Silhouette")
	if err != nil {
		return "", err
	}

	img := vgimg.New(v.width, v.height)
	dc := draw.New(img)
	plots := [][]*plot.Plot{{left, right}}
	canvases := plot.Align(plots, draw.Tiles{Rows: 1, Cols: 2, PadX: vg.Millimeter * 4}, dc)
	left.Draw(canvases[0][0])
	right.Draw(canvases[0][1])

	path := filepath.Join(v.dir, "optimal_clusters.png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("erreur création figure %s: %w", path, err)
	}
	defer f.Close()
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		return "", fmt.Errorf("erreur écriture figure %s: %w", path, err)
	}
	return path, nil
}

// ProjectPCA projette les lignes centrées sur les deux premières composantes principales
func ProjectPCA(x [][]float64) ([][2]float64, error) {
	if err := clustering.CheckMatrix(x); err != nil {
		return nil, err
	}
	n, d := len(x), len(x[0])
	if n < 2 {
		return nil, shared.NewInvalidParameter("matrix", "au moins deux lignes requises pour l'ACP")
	}

	data := mat.NewDense(n, d, nil)
	for i, row := range x {
		data.SetRow(i, row)
	}
	means := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, data)
		means[j] = stat.Mean(col, nil)
	}
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - means[j] }, data)

	out := make([][2]float64, n)
	var pc stat.PC
	if ok := pc.PrincipalComponents(centered, nil); !ok {
		return nil, fmt.Errorf("erreur ACP: décomposition impossible")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	_, k := vecs.Dims()
	if k > 2 {
		k = 2
	}
	var proj mat.Dense
	proj.Mul(centered, vecs.Slice(0, d, 0, k))
	for i := range out {
		for c := 0; c < k; c++ {
			out[i][c] = proj.At(i, c)
		}
	}
	return out, nil
}

func linePlot(xys plotter.XYs, c color.Color, title, ylabel string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Nombre de clusters"
	p.Y.Label.Text = ylabel
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, err
	}
	line.Color = c
	points.Color = c
	p.Add(line, points, plotter.NewGrid())
	return p, nil
}

// grid matrice z[ligne][colonne] exposée comme plotter.GridXYZ
type grid [][]float64

func (g grid) Dims() (c, r int)   { return len(g[0]), len(g) }
func (g grid) Z(c, r int) float64 { return g[r][c] }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return float64(r) }

// heatmap carte de chaleur annotée, lignes de haut en bas
func heatmap(z [][]float64, cols, rows []string, format string) (*plot.Plot, error) {
	if len(z) == 0 || len(z[0]) == 0 {
		return nil, shared.NewInvalidParameter("heatmap", "matrice vide")
	}
	// Y croissant vers le haut: inverser pour lire la première ligne en haut
	flipped := make(grid, len(z))
	for r := range z {
		flipped[len(z)-1-r] = z[r]
	}

	hm := plotter.NewHeatMap(flipped, palette.Heat(16, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}

	var xys plotter.XYs
	var texts []string
	for r, row := range flipped {
		for c, val := range row {
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(r)})
			texts = append(texts, fmt.Sprintf(format, val))
		}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Add(hm, labels)

	xt := make([]plot.Tick, len(cols))
	for i, c := range cols {
		xt[i] = plot.Tick{Value: float64(i), Label: c}
	}
	yt := make([]plot.Tick, len(rows))
	for i, r := range rows {
		yt[i] = plot.Tick{Value: float64(len(rows) - 1 - i), Label: r}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xt)
	p.Y.Tick.Marker = plot.ConstantTicks(yt)
	p.X.Tick.Label.Rotation = math.Pi / 6
	p.X.Tick.Label.XAlign = draw.XRight
	return p, nil
}

// pairCorrelation corrélation sur les lignes où les deux valeurs sont présentes
func pairCorrelation(a, b []float64) float64 {
	xa := make([]float64, 0, len(a))
	xb := make([]float64, 0, len(b))
	for i := range a {
		if !math.IsNaN(a[i]) && !math.IsNaN(b[i]) {
			xa = append(xa, a[i])
			xb = append(xb, b[i])
		}
	}
	if len(xa) < 2 {
		return 0
	}
	r := stat.Correlation(xa, xb, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}
