package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"streetsight/internal/aggregator"
	"streetsight/internal/config"
	"streetsight/internal/dao"
	"streetsight/internal/detector"
	"streetsight/internal/geocode"
	"streetsight/internal/imaging"
	"streetsight/internal/model"
	"streetsight/internal/notify"
	"streetsight/pkg/log"
	"streetsight/pkg/str"
)

const detectedNamespace = "detected-images"

// ImageSource produces a frame for a coordinate and heading.
type ImageSource interface {
	Fetch(ctx context.Context, lat, lon float64, heading int) ([]byte, error)
}

// Geocoder resolves a coordinate to a street address, best effort.
type Geocoder interface {
	Resolve(ctx context.Context, lat, lon float64) (geocode.Address, error)
}

// BlobStore is durable object storage with public URLs.
type BlobStore interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
	RemovePrefix(ctx context.Context, prefix string) error
}

// Registrar persists one positive image into the event graph.
type Registrar interface {
	Register(ctx context.Context, lat, lon float64, addr geocode.Address,
		direction model.Direction, imageURL string, detections []detector.Detection) (*aggregator.RegisterResult, error)
}

// Heading is one compass-relative camera direction, visited in the
// declared order for every coordinate.
type Heading struct {
	Direction model.Direction
	Degrees   int
}

// DefaultHeadings is the fixed heading order per coordinate.
var DefaultHeadings = []Heading{
	{model.DirectionFront, 90},
	{model.DirectionRight, 180},
	{model.DirectionBack, 270},
	{model.DirectionLeft, 360},
}

// Pipeline is the detection orchestrator: it walks a route, fetches and
// masks frames, runs the selected backend, persists positives and emits
// one progress record per unit as soon as it completes.
type Pipeline struct {
	conf      *config.Config
	source    ImageSource
	geocoder  Geocoder
	store     BlobStore
	registrar Registrar
	notifier  *notify.Publisher
	headings  []Heading
}

func New(conf *config.Config, source ImageSource, geocoder Geocoder, store BlobStore,
	registrar Registrar, notifier *notify.Publisher) *Pipeline {
	return &Pipeline{
		conf:      conf,
		source:    source,
		geocoder:  geocoder,
		store:     store,
		registrar: registrar,
		notifier:  notifier,
		headings:  DefaultHeadings,
	}
}

// RunParams describes one route invocation.
type RunParams struct {
	UserId   int
	Route    []Coordinate
	Detector detector.Detector
	// Emit receives one progress record per unit, in completion order.
	// Calls are serialized by the pipeline.
	Emit func(dao.StreamProgress)
}

// unit is one (coordinate, heading) work item.
type unit struct {
	seq     int
	coord   Coordinate
	heading Heading
}

// Run walks the route. It returns when every unit has completed or the
// context is cancelled; no unit failure is fatal to the run.
func (p *Pipeline) Run(ctx context.Context, params RunParams) dao.StreamDone {
	runId := str.GenRunId()
	logger := log.GetLogger(ctx).WithFields(logrus.Fields{
		"userId": params.UserId,
		"runId":  runId,
	})

	streamPrefix := fmt.Sprintf("user%d-livestream", params.UserId)
	clearCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout())
	if err := p.store.RemovePrefix(clearCtx, streamPrefix); err != nil {
		logger.WithError(err).Errorf("failed to clear stream folder %s", streamPrefix)
	}
	cancel()

	units := make([]unit, 0, len(params.Route)*len(p.headings))
	for _, coord := range params.Route {
		for _, heading := range p.headings {
			units = append(units, unit{seq: len(units), coord: coord, heading: heading})
		}
	}

	workers := p.conf.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}

	unitCh := make(chan unit)
	var wg sync.WaitGroup
	var emitMu sync.Mutex
	var statsMu sync.Mutex
	done := dao.StreamDone{Type: dao.MessageTypeDone}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range unitCh {
				progress := p.processUnit(ctx, logger, params, u, runId)

				statsMu.Lock()
				done.TotalUnits++
				if progress.Detected {
					done.DetectedUnits++
				}
				if progress.Error != "" {
					done.ErroredUnits++
				}
				statsMu.Unlock()

				if params.Emit != nil {
					emitMu.Lock()
					params.Emit(progress)
					emitMu.Unlock()
				}
			}
		}()
	}

	// ctx.Err is checked before every send: with a worker blocked on
	// receive both select cases can be ready at once and the send may win
	// even after cancellation.
dispatch:
	for _, u := range units {
		if ctx.Err() != nil {
			done.Cancelled = true
			break
		}
		select {
		case <-ctx.Done():
			done.Cancelled = true
			break dispatch
		case unitCh <- u:
		}
	}
	close(unitCh)
	wg.Wait()

	logger.Infof("route finished: %d units, %d detected, %d errored, cancelled=%v",
		done.TotalUnits, done.DetectedUnits, done.ErroredUnits, done.Cancelled)
	return done
}

// processUnit runs one (coordinate, heading) through
// fetch → mask → detect → (persist/upload) → emit record. Every failure
// is absorbed into the unit itself.
func (p *Pipeline) processUnit(ctx context.Context, logger *logrus.Entry, params RunParams, u unit, runId string) dao.StreamProgress {
	progress := dao.StreamProgress{
		Type:      dao.MessageTypeProgress,
		Seq:       u.seq,
		Direction: string(u.heading.Direction),
		Lat:       u.coord.Lat,
		Lon:       u.coord.Lon,
		Boxes:     [][4]int{},
		Labels:    []string{},
		Scores:    []float32{},
	}

	addr := p.resolveAddress(ctx, logger, u)

	fetchCtx, cancel := context.WithTimeout(ctx, timeoutOr(p.conf.Pipeline.FetchTimeoutS, 15*time.Second))
	raw, err := p.source.Fetch(fetchCtx, u.coord.Lat, u.coord.Lon, u.heading.Degrees)
	cancel()
	if err != nil {
		logger.WithError(err).Errorf("failed to fetch %s image at coordinate (%f, %f)",
			u.heading.Direction, u.coord.Lat, u.coord.Lon)
		progress.Error = fmt.Sprintf("image fetch failed: %v", err)
		return progress
	}

	// Mask failure degrades to detecting on the unmasked frame.
	masked, err := imaging.MaskWatermark(raw)
	if err != nil {
		logger.WithError(err).Warnf("watermark mask failed for unit %d, detecting on unmasked image", u.seq)
	}

	detections := p.detect(ctx, logger, params.Detector, masked, u)
	progress.Detected = len(detections) > 0

	imageName := fmt.Sprintf("%s_%d.jpg", time.Now().Format("20060102150405"), u.seq+1)

	if progress.Detected {
		for _, d := range detections {
			progress.Boxes = append(progress.Boxes, d.Box)
			progress.Labels = append(progress.Labels, d.Label)
			progress.Scores = append(progress.Scores, d.Score)
		}
		p.persistDetection(ctx, logger, u, addr, raw, runId+"_"+imageName, detections)
	}

	// The raw stream upload and emission happen regardless of outcome.
	streamKey := fmt.Sprintf("user%d-livestream/%s/%s", params.UserId, u.heading.Direction, imageName)
	uploadCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout())
	url, err := p.store.UploadBytes(uploadCtx, streamKey, raw, "image/jpeg")
	cancel()
	if err != nil {
		logger.WithError(err).Errorf("failed to upload stream image %s", streamKey)
		progress.Error = fmt.Sprintf("stream upload failed: %v", err)
	} else {
		progress.URL = url
	}

	return progress
}

func (p *Pipeline) resolveAddress(ctx context.Context, logger *logrus.Entry, u unit) geocode.Address {
	geocodeCtx, cancel := context.WithTimeout(ctx, timeoutOr(p.conf.Pipeline.GeocodeTimeoutS, 10*time.Second))
	defer cancel()

	addr, err := p.geocoder.Resolve(geocodeCtx, u.coord.Lat, u.coord.Lon)
	if err != nil {
		logger.WithError(err).Warnf("failed to retrieve address for coordinate (%f, %f)", u.coord.Lat, u.coord.Lon)
		return geocode.Address{}
	}
	return addr
}

// detect treats any backend failure as a negative detection, then applies
// the uniform score and keyword filters.
func (p *Pipeline) detect(ctx context.Context, logger *logrus.Entry, d detector.Detector, image []byte, u unit) []detector.Detection {
	detectCtx, cancel := context.WithTimeout(ctx, timeoutOr(p.conf.Pipeline.DetectTimeoutS, 60*time.Second))
	defer cancel()

	detections, err := d.Detect(detectCtx, image, p.conf.Detection.Labels)
	if err != nil {
		logger.WithError(err).Errorf("detection failed on unit %d", u.seq)
		return nil
	}
	return detector.Filter(detections, p.conf.Detection.ScoreThreshold, p.conf.Detection.AllowedKeywords)
}

// persistDetection is the detection-triggered side branch: raw frame to
// the detected namespace, an annotated companion copy, then the aggregator
// and task notifications. Its failures never fail the unit.
func (p *Pipeline) persistDetection(ctx context.Context, logger *logrus.Entry, u unit,
	addr geocode.Address, raw []byte, imageName string, detections []detector.Detection) {

	// The event row points at the untouched frame; the annotated copy is
	// for human review only.
	detectedKey := fmt.Sprintf("%s/%s", detectedNamespace, imageName)
	uploadCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout())
	detectedURL, err := p.store.UploadBytes(uploadCtx, detectedKey, raw, "image/jpeg")
	cancel()
	if err != nil {
		logger.WithError(err).Errorf("failed to upload detected image %s", detectedKey)
		return
	}

	if annotated, err := imaging.Annotate(raw, detections); err != nil {
		logger.WithError(err).Warnf("annotation failed for unit %d", u.seq)
	} else {
		annotatedKey := fmt.Sprintf("%s/annotated_%s", detectedNamespace, imageName)
		uploadCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout())
		if _, err := p.store.UploadBytes(uploadCtx, annotatedKey, annotated, "image/jpeg"); err != nil {
			logger.WithError(err).Warnf("failed to upload annotated image %s", annotatedKey)
		}
		cancel()
	}

	result, err := p.registrar.Register(ctx, u.coord.Lat, u.coord.Lon, addr,
		u.heading.Direction, detectedURL, detections)
	if err != nil {
		logger.WithError(err).Errorf("failed to register detections for unit %d", u.seq)
		return
	}

	for _, task := range result.Tasks {
		p.notifier.PublishTask(&dao.TaskMessage{
			TaskId:     task.TaskId,
			MetadataId: task.MetadataId,
			EventId:    result.EventId,
			Lat:        u.coord.Lat,
			Lon:        u.coord.Lon,
			Label:      task.Label,
			Type:       string(task.Type),
			ImageURL:   detectedURL,
			Timestamp:  time.Now().UnixNano(),
		})
	}
}

func (p *Pipeline) uploadTimeout() time.Duration {
	return timeoutOr(p.conf.Pipeline.UploadTimeoutS, 30*time.Second)
}

func timeoutOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
