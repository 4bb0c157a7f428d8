package transcode

var ParseFfmpegError = parseFfmpegError
