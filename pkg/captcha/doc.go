// Package captcha synthesizes challenge images: a short random string drawn
// with randomized typography over a noisy background, then distorted with a
// sinusoidal wobble.
//
// # Pipeline
//
// Every call to [Engine.Produce] runs five stages in order:
//
//  1. word: a [WordFactory] draws the challenge from the configured alphabet
//  2. background: a [BackgroundGenerator] fills the canvas and scatters dots and lines
//  3. text: a [TextCompositor] lays the glyphs out in equal cells and draws them
//  4. filter: a [Filter] (by default wobble.Filter) remaps every pixel
//  5. encode: the result is encoded as PNG
//
// A failure in any stage is returned as an errors.Error tagged with the
// stage name. Nothing is retried.
//
// # Usage
//
//	engine, err := captcha.New(captcha.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	res, err := engine.Produce(ctx)
//	if err != nil {
//	    return err
//	}
//	w.Header().Set("Content-Type", captcha.MediaType)
//	res.WriteTo(w)
//
// # Concurrency
//
// An Engine holds no mutable state. Each Produce call creates its own random
// generator (see [NewRand] and [SeededRand]) and its own canvas, so one engine
// can serve any number of concurrent requests. Parsed fonts are shared
// read-only; faces are created per glyph.
//
// # Strategies
//
// Each stage is a small interface injected through an [Option]. Alternates
// shipped with the package include [PaletteColor], [RangeColor] and
// [GradientBackground].
package captcha
