package mandelmpi

import "flag"

// BindFlags registers the benchmark options of the original command line on
// fs, defaulting to the current values of c.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.Float64Var(&c.Xmin, "xmin", c.Xmin, "left edge of the region")
	fs.Float64Var(&c.Xmax, "xmax", c.Xmax, "right edge of the region")
	fs.Float64Var(&c.Ymin, "ymin", c.Ymin, "lower edge of the region")
	fs.Float64Var(&c.Ymax, "ymax", c.Ymax, "upper edge of the region")
	fs.IntVar(&c.Width, "w", c.Width, "image width in pixels")
	fs.IntVar(&c.Height, "h", c.Height, "image height in pixels")
	fs.IntVar(&c.MaxIter, "i", c.MaxIter, "max. number of iterations per pixel")
	fs.IntVar(&c.BlockSize, "b", c.BlockSize, "blocksize used for strides and blockmaster")
	fs.StringVar(&c.Strategy, "t", c.Strategy, "0=stride, 1=stripe, 2=blockmaster")
	fs.StringVar(&c.Output, "o", c.Output, "output file")
	fs.BoolVar(&c.Compress, "z", c.Compress, "zstd-compress block payloads")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "verbose")
	fs.StringVar(&c.RunID, "runid", c.RunID, "run identifier shared by all participants")
}
